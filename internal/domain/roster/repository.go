package roster

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Репозиторий всегда привязан к открытой транзакции хранилища:
// записи внутри транзакции видны последующим чтениям той же транзакции.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над учётными записями, профилями и предметами.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Identities
	// ─────────────────────────────────────────────────────────────────────────

	// CreateIdentity сохраняет Identity и присваивает ей ID.
	// Возвращает ErrHandleTaken, если handle уже занят.
	CreateIdentity(ctx context.Context, identity *Identity) error

	// GetIdentity возвращает Identity по ID.
	// Возвращает ErrIdentityNotFound, если запись не найдена.
	GetIdentity(ctx context.Context, id int64) (*Identity, error)

	// HandleExists проверяет, занят ли handle.
	HandleExists(ctx context.Context, handle string) (bool, error)

	// ProtectedAdmin возвращает защищённого администратора.
	// Возвращает ErrIdentityNotFound, если его ещё нет.
	ProtectedAdmin(ctx context.Context) (*Identity, error)

	// DeleteIdentity удаляет Identity по ID.
	DeleteIdentity(ctx context.Context, id int64) error

	// DeleteUnprotectedIdentities удаляет все незащищённые Identity.
	DeleteUnprotectedIdentities(ctx context.Context) (int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Instructors
	// ─────────────────────────────────────────────────────────────────────────

	// CreateInstructor сохраняет профиль преподавателя и присваивает ему ID.
	CreateInstructor(ctx context.Context, instructor *Instructor) error

	// GetInstructor возвращает преподавателя по ID.
	GetInstructor(ctx context.Context, id int64) (*Instructor, error)

	// FindInstructorByName ищет преподавателя по отображаемому имени.
	// Возвращает ErrInstructorNotFound, если совпадений нет.
	FindInstructorByName(ctx context.Context, displayName string) (*Instructor, error)

	// FindInstructorByIdentity ищет профиль преподавателя по Identity.
	FindInstructorByIdentity(ctx context.Context, identityID int64) (*Instructor, error)

	// ListInstructors возвращает всех преподавателей, упорядоченных по ID.
	ListInstructors(ctx context.Context) ([]Instructor, error)

	// DeleteInstructor удаляет профиль преподавателя.
	DeleteInstructor(ctx context.Context, id int64) error

	// DeleteUnprotectedInstructors удаляет профили, чья Identity не защищена.
	DeleteUnprotectedInstructors(ctx context.Context) (int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Learners
	// ─────────────────────────────────────────────────────────────────────────

	// CreateLearner сохраняет профиль ученика и присваивает ему ID.
	// Возвращает ErrLearnerCodeTaken, если внешний код уже зарегистрирован.
	CreateLearner(ctx context.Context, learner *Learner) error

	// FindLearnerByCode ищет ученика по внешнему коду.
	// Возвращает ErrLearnerNotFound, если совпадений нет.
	FindLearnerByCode(ctx context.Context, externalCode string) (*Learner, error)

	// FindLearnerByIdentity ищет профиль ученика по Identity.
	FindLearnerByIdentity(ctx context.Context, identityID int64) (*Learner, error)

	// ListLearners возвращает всех учеников, упорядоченных по ID.
	ListLearners(ctx context.Context) ([]Learner, error)

	// DeleteLearner удаляет профиль ученика.
	DeleteLearner(ctx context.Context, id int64) error

	// DeleteUnprotectedLearners удаляет профили, чья Identity не защищена.
	DeleteUnprotectedLearners(ctx context.Context) (int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Subjects
	// ─────────────────────────────────────────────────────────────────────────

	// CreateSubject сохраняет предмет и присваивает ему ID.
	CreateSubject(ctx context.Context, subject *Subject) error

	// FindSubjectByName ищет предмет по названию.
	// При нескольких совпадениях возвращает предмет с наименьшим ID.
	FindSubjectByName(ctx context.Context, name string) (*Subject, error)

	// ListSubjects возвращает все предметы, упорядоченные по ID.
	ListSubjects(ctx context.Context) ([]Subject, error)

	// DeleteAllSubjects удаляет все предметы.
	DeleteAllSubjects(ctx context.Context) (int, error)

	// DeleteOrphanSubjects удаляет предметы, на которые не ссылается ни одна оценка.
	DeleteOrphanSubjects(ctx context.Context) (int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Statistics
	// ─────────────────────────────────────────────────────────────────────────

	// Counts возвращает количество записей каждого типа.
	Counts(ctx context.Context) (Counts, error)
}

// Counts - количество записей каждого типа в реестре.
type Counts struct {
	Identities  int `json:"identities"`
	Instructors int `json:"instructors"`
	Learners    int `json:"learners"`
	Subjects    int `json:"subjects"`
}
