package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

type rosterRepo struct {
	q Querier
}

var _ roster.Repository = rosterRepo{}

const (
	identityColumns   = `id, handle, email, role, credential_hash, active, protected, created_at`
	instructorColumns = `id, identity_id, display_name, subject_affinity, status, joined_at`
	learnerColumns    = `id, identity_id, external_code, display_name, cohort, enrolled_at`
	subjectColumns    = `id, name, description, difficulty`
)

// ─────────────────────────────────────────────────────────────────────────────
// Identities
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateIdentity(ctx context.Context, identity *roster.Identity) error {
	query := `
		INSERT INTO identities (handle, email, role, credential_hash, active, protected, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		identity.Handle,
		identity.Email,
		string(identity.Role),
		identity.CredentialHash,
		identity.Active,
		identity.Protected,
		orNow(identity.CreatedAt),
	).Scan(&identity.ID)
	return classify("CreateIdentity", err, nil, shared.ErrHandleTaken)
}

func (r rosterRepo) GetIdentity(ctx context.Context, id int64) (*roster.Identity, error) {
	row := r.q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

func (r rosterRepo) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE handle = $1)`, handle).Scan(&exists)
	return exists, classify("HandleExists", err, nil, nil)
}

func (r rosterRepo) ProtectedAdmin(ctx context.Context) (*roster.Identity, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE protected AND role = $1
		ORDER BY id LIMIT 1
	`, string(roster.RoleAdmin))
	return scanIdentity(row)
}

func (r rosterRepo) DeleteIdentity(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "DeleteIdentity", `DELETE FROM identities WHERE id = $1`, id, shared.ErrIdentityNotFound)
}

func (r rosterRepo) DeleteUnprotectedIdentities(ctx context.Context) (int, error) {
	return r.deleteMany(ctx, "DeleteUnprotectedIdentities", `DELETE FROM identities WHERE NOT protected`)
}

func scanIdentity(row pgx.Row) (*roster.Identity, error) {
	var (
		ident roster.Identity
		role  string
	)
	err := row.Scan(
		&ident.ID,
		&ident.Handle,
		&ident.Email,
		&role,
		&ident.CredentialHash,
		&ident.Active,
		&ident.Protected,
		&ident.CreatedAt,
	)
	if err != nil {
		return nil, classify("ScanIdentity", err, shared.ErrIdentityNotFound, nil)
	}
	ident.Role = roster.Role(role)
	return &ident, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Instructors
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateInstructor(ctx context.Context, in *roster.Instructor) error {
	query := `
		INSERT INTO instructors (identity_id, display_name, subject_affinity, status, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		in.IdentityID,
		in.DisplayName,
		in.SubjectAffinity,
		in.Status,
		orNow(in.JoinedAt),
	).Scan(&in.ID)
	return classify("CreateInstructor", err, nil, nil)
}

func (r rosterRepo) GetInstructor(ctx context.Context, id int64) (*roster.Instructor, error) {
	row := r.q.QueryRow(ctx, `SELECT `+instructorColumns+` FROM instructors WHERE id = $1`, id)
	return scanInstructor(row)
}

func (r rosterRepo) FindInstructorByName(ctx context.Context, displayName string) (*roster.Instructor, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+instructorColumns+` FROM instructors
		WHERE display_name = $1
		ORDER BY id LIMIT 1
	`, displayName)
	return scanInstructor(row)
}

func (r rosterRepo) FindInstructorByIdentity(ctx context.Context, identityID int64) (*roster.Instructor, error) {
	row := r.q.QueryRow(ctx, `SELECT `+instructorColumns+` FROM instructors WHERE identity_id = $1`, identityID)
	return scanInstructor(row)
}

func (r rosterRepo) ListInstructors(ctx context.Context) ([]roster.Instructor, error) {
	rows, err := r.q.Query(ctx, `SELECT `+instructorColumns+` FROM instructors ORDER BY id`)
	if err != nil {
		return nil, classify("ListInstructors", err, nil, nil)
	}
	defer rows.Close()

	var out []roster.Instructor
	for rows.Next() {
		in, err := scanInstructor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, classify("ListInstructors", rows.Err(), nil, nil)
}

func (r rosterRepo) DeleteInstructor(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "DeleteInstructor", `DELETE FROM instructors WHERE id = $1`, id, shared.ErrInstructorNotFound)
}

func (r rosterRepo) DeleteUnprotectedInstructors(ctx context.Context) (int, error) {
	return r.deleteMany(ctx, "DeleteUnprotectedInstructors", `
		DELETE FROM instructors i
		USING identities ident
		WHERE i.identity_id = ident.id AND NOT ident.protected
	`)
}

func scanInstructor(row pgx.Row) (*roster.Instructor, error) {
	var in roster.Instructor
	err := row.Scan(&in.ID, &in.IdentityID, &in.DisplayName, &in.SubjectAffinity, &in.Status, &in.JoinedAt)
	if err != nil {
		return nil, classify("ScanInstructor", err, shared.ErrInstructorNotFound, nil)
	}
	return &in, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Learners
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateLearner(ctx context.Context, l *roster.Learner) error {
	query := `
		INSERT INTO learners (identity_id, external_code, display_name, cohort, enrolled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		l.IdentityID,
		l.ExternalCode,
		l.DisplayName,
		l.Cohort,
		orNow(l.EnrolledAt),
	).Scan(&l.ID)
	return classify("CreateLearner", err, nil, shared.ErrLearnerCodeTaken)
}

func (r rosterRepo) FindLearnerByCode(ctx context.Context, externalCode string) (*roster.Learner, error) {
	row := r.q.QueryRow(ctx, `SELECT `+learnerColumns+` FROM learners WHERE external_code = $1`, externalCode)
	return scanLearner(row)
}

func (r rosterRepo) FindLearnerByIdentity(ctx context.Context, identityID int64) (*roster.Learner, error) {
	row := r.q.QueryRow(ctx, `SELECT `+learnerColumns+` FROM learners WHERE identity_id = $1`, identityID)
	return scanLearner(row)
}

func (r rosterRepo) ListLearners(ctx context.Context) ([]roster.Learner, error) {
	rows, err := r.q.Query(ctx, `SELECT `+learnerColumns+` FROM learners ORDER BY id`)
	if err != nil {
		return nil, classify("ListLearners", err, nil, nil)
	}
	defer rows.Close()

	var out []roster.Learner
	for rows.Next() {
		l, err := scanLearner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, classify("ListLearners", rows.Err(), nil, nil)
}

func (r rosterRepo) DeleteLearner(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "DeleteLearner", `DELETE FROM learners WHERE id = $1`, id, shared.ErrLearnerNotFound)
}

func (r rosterRepo) DeleteUnprotectedLearners(ctx context.Context) (int, error) {
	return r.deleteMany(ctx, "DeleteUnprotectedLearners", `
		DELETE FROM learners l
		USING identities ident
		WHERE l.identity_id = ident.id AND NOT ident.protected
	`)
}

func scanLearner(row pgx.Row) (*roster.Learner, error) {
	var l roster.Learner
	err := row.Scan(&l.ID, &l.IdentityID, &l.ExternalCode, &l.DisplayName, &l.Cohort, &l.EnrolledAt)
	if err != nil {
		return nil, classify("ScanLearner", err, shared.ErrLearnerNotFound, nil)
	}
	return &l, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Subjects
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateSubject(ctx context.Context, sub *roster.Subject) error {
	difficulty := sub.Difficulty
	if difficulty == "" {
		difficulty = roster.DefaultDifficulty
	}
	err := r.q.QueryRow(ctx,
		`INSERT INTO subjects (name, description, difficulty) VALUES ($1, $2, $3) RETURNING id`,
		sub.Name, sub.Description, difficulty,
	).Scan(&sub.ID)
	if err == nil {
		sub.Difficulty = difficulty
	}
	return classify("CreateSubject", err, nil, nil)
}

func (r rosterRepo) FindSubjectByName(ctx context.Context, name string) (*roster.Subject, error) {
	var sub roster.Subject
	err := r.q.QueryRow(ctx, `
		SELECT `+subjectColumns+` FROM subjects
		WHERE name = $1
		ORDER BY id LIMIT 1
	`, name).Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Difficulty)
	if err != nil {
		return nil, classify("FindSubjectByName", err, shared.ErrSubjectNotFound, nil)
	}
	return &sub, nil
}

func (r rosterRepo) ListSubjects(ctx context.Context) ([]roster.Subject, error) {
	rows, err := r.q.Query(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY id`)
	if err != nil {
		return nil, classify("ListSubjects", err, nil, nil)
	}
	defer rows.Close()

	var out []roster.Subject
	for rows.Next() {
		var sub roster.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Difficulty); err != nil {
			return nil, classify("ListSubjects", err, nil, nil)
		}
		out = append(out, sub)
	}
	return out, classify("ListSubjects", rows.Err(), nil, nil)
}

func (r rosterRepo) DeleteAllSubjects(ctx context.Context) (int, error) {
	return r.deleteMany(ctx, "DeleteAllSubjects", `DELETE FROM subjects`)
}

func (r rosterRepo) DeleteOrphanSubjects(ctx context.Context) (int, error) {
	return r.deleteMany(ctx, "DeleteOrphanSubjects", `
		DELETE FROM subjects s
		WHERE NOT EXISTS (SELECT 1 FROM measurements m WHERE m.subject_id = s.id)
	`)
}

// ─────────────────────────────────────────────────────────────────────────────
// Statistics
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) Counts(ctx context.Context) (roster.Counts, error) {
	var c roster.Counts
	err := r.q.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM identities),
			(SELECT count(*) FROM instructors),
			(SELECT count(*) FROM learners),
			(SELECT count(*) FROM subjects)
	`).Scan(&c.Identities, &c.Instructors, &c.Learners, &c.Subjects)
	return c, classify("Counts", err, nil, nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) deleteOne(ctx context.Context, op, query string, id int64, notFound error) error {
	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return classify(op, err, nil, nil)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func (r rosterRepo) deleteMany(ctx context.Context, op, query string) (int, error) {
	tag, err := r.q.Exec(ctx, query)
	if err != nil {
		return 0, classify(op, err, nil, nil)
	}
	return int(tag.RowsAffected()), nil
}

// orNow substitutes the current time for a zero timestamp.
func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
