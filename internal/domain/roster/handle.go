package roster

import (
	"strconv"
	"strings"
	"unicode"
)

// handlePunctuation - символы, удаляемые из имени при построении handle.
const handlePunctuation = ".,'"

// NormalizeHandle строит базовый handle из отображаемого имени:
// удаляет пробельные символы и знаки из handlePunctuation, приводит к нижнему регистру.
// Результат может быть пустым; проверка остаётся за вызывающим кодом.
func NormalizeHandle(displayName string) string {
	var b strings.Builder
	b.Grow(len(displayName))
	for _, r := range displayName {
		if unicode.IsSpace(r) || strings.ContainsRune(handlePunctuation, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// CandidateHandle возвращает кандидата для попытки attempt.
// Попытка 0 - сам base, далее base1, base2, ...
func CandidateHandle(base string, attempt int) string {
	if attempt <= 0 {
		return base
	}
	return base + strconv.Itoa(attempt)
}
