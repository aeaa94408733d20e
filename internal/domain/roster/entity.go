package roster

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль учётной записи.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleLearner    Role = "learner"
)

// IsValid проверяет, что роль из допустимого набора.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleInstructor, RoleLearner:
		return true
	}
	return false
}

// String возвращает строковое представление роли.
func (r Role) String() string {
	return string(r)
}

// Kind определяет тип сущности, которую создаёт resolver.
type Kind string

const (
	KindInstructor Kind = "instructor"
	KindLearner    Kind = "learner"
	KindSubject    Kind = "subject"
)

// Role возвращает роль Identity, создаваемой для данного типа.
// Для Subject Identity не создаётся.
func (k Kind) Role() (Role, bool) {
	switch k {
	case KindInstructor:
		return RoleInstructor, true
	case KindLearner:
		return RoleLearner, true
	}
	return "", false
}

// Статусы преподавателя.
const (
	InstructorStatusActive = "active"
)

// DefaultDifficulty используется для предметов, созданных при импорте.
const DefaultDifficulty = "Intermediate"

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Identity - учётная запись, к которой привязан ровно один профиль.
type Identity struct {
	ID             int64
	Handle         string
	Email          string
	Role           Role
	CredentialHash string
	Active         bool
	Protected      bool
	CreatedAt      time.Time
}

// Instructor - профиль преподавателя.
type Instructor struct {
	ID              int64
	IdentityID      int64
	DisplayName     string
	SubjectAffinity string
	Status          string
	JoinedAt        time.Time
}

// Learner - профиль ученика.
type Learner struct {
	ID           int64
	IdentityID   int64
	ExternalCode string
	DisplayName  string
	Cohort       string
	EnrolledAt   time.Time
}

// Subject - учебный предмет.
type Subject struct {
	ID          int64
	Name        string
	Description string
	Difficulty  string
}

// EmailFor выводит адрес из handle и домена.
func EmailFor(handle, domain string) string {
	return fmt.Sprintf("%s@%s", handle, domain)
}

// SubjectDescription возвращает описание для предмета, созданного при импорте.
func SubjectDescription(name string) string {
	return name + " curriculum"
}
