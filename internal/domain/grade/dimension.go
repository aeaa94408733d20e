package grade

import (
	"fmt"
)

// Dimension - измерение, по которому группируются оценки.
// Значение совпадает с ключом в отчётах.
type Dimension string

const (
	DimensionDay        Dimension = "day_of_week"
	DimensionInstructor Dimension = "teacher_name"
	DimensionTopic      Dimension = "topic"
)

// Dimensions - все измерения в порядке вывода.
var Dimensions = []Dimension{DimensionDay, DimensionInstructor, DimensionTopic}

// IsValid проверяет, что измерение известно.
func (d Dimension) IsValid() bool {
	switch d {
	case DimensionDay, DimensionInstructor, DimensionTopic:
		return true
	}
	return false
}

// String возвращает строковое представление измерения.
func (d Dimension) String() string {
	return string(d)
}

// ParseDimension разбирает имя измерения.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(s)
	if !d.IsValid() {
		return "", fmt.Errorf("unknown dimension %q", s)
	}
	return d, nil
}
