package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY RESOLVER
// Maps a natural key onto an existing entity or creates it together with
// its identity. Existing entities are returned as-is (first write wins).
// ══════════════════════════════════════════════════════════════════════════════

// maxHandleAttempts bounds the collision suffix search.
const maxHandleAttempts = 10000

// CredentialHasher hashes the default credential for new identities.
type CredentialHasher interface {
	Hash(secret string) (string, error)
}

// Attributes carries the values used only when an entity is created.
type Attributes struct {
	DisplayName     string
	SubjectAffinity string
}

// EntityRef points at a resolved entity.
type EntityRef struct {
	Kind       roster.Kind
	ID         int64
	IdentityID int64
	Created    bool
}

// Resolver resolves natural keys for one ingestion run.
// The default credential is hashed at most once per resolver.
type Resolver struct {
	cfg    Config
	hasher CredentialHasher
	now    func() time.Time

	credentialHash string
}

// NewResolver creates a resolver for one ingestion run.
func NewResolver(cfg Config, hasher CredentialHasher, now func() time.Time) *Resolver {
	return &Resolver{cfg: cfg, hasher: hasher, now: now}
}

// resolveOrder is the order in which the entities of a record are resolved.
var resolveOrder = [...]roster.Kind{roster.KindLearner, roster.KindInstructor, roster.KindSubject}

// naturalKey returns the key and creation attributes of one entity of rec.
// The subject name doubles as the affinity of a new instructor.
func (rec Record) naturalKey(kind roster.Kind) (string, Attributes) {
	switch kind {
	case roster.KindLearner:
		return rec.LearnerCode, Attributes{DisplayName: rec.LearnerName}
	case roster.KindInstructor:
		return rec.InstructorName, Attributes{SubjectAffinity: rec.Subject}
	}
	return rec.Subject, Attributes{}
}

// Resolve dispatches on kind.
func (r *Resolver) Resolve(ctx context.Context, repo roster.Repository, kind roster.Kind, naturalKey string, attrs Attributes) (EntityRef, error) {
	switch kind {
	case roster.KindInstructor:
		return r.ResolveInstructor(ctx, repo, naturalKey, attrs.SubjectAffinity)
	case roster.KindLearner:
		return r.ResolveLearner(ctx, repo, naturalKey, attrs.DisplayName)
	case roster.KindSubject:
		return r.ResolveSubject(ctx, repo, naturalKey)
	}
	return EntityRef{}, shared.ValidationError("ingest", "Resolve", fmt.Sprintf("unknown entity kind %q", kind))
}

// ResolveInstructor looks an instructor up by display name.
func (r *Resolver) ResolveInstructor(ctx context.Context, repo roster.Repository, displayName, subjectAffinity string) (EntityRef, error) {
	if displayName == "" {
		return EntityRef{}, shared.ValidationError("ingest", "ResolveInstructor", "instructor display name is empty")
	}

	existing, err := repo.FindInstructorByName(ctx, displayName)
	if err == nil {
		return EntityRef{Kind: roster.KindInstructor, ID: existing.ID, IdentityID: existing.IdentityID}, nil
	}
	if !shared.IsNotFound(err) {
		return EntityRef{}, err
	}

	identity, err := r.createIdentity(ctx, repo, displayName, roster.RoleInstructor)
	if err != nil {
		return EntityRef{}, err
	}

	instructor := &roster.Instructor{
		IdentityID:      identity.ID,
		DisplayName:     displayName,
		SubjectAffinity: subjectAffinity,
		Status:          roster.InstructorStatusActive,
		JoinedAt:        r.now(),
	}
	if err := repo.CreateInstructor(ctx, instructor); err != nil {
		return EntityRef{}, err
	}
	return EntityRef{Kind: roster.KindInstructor, ID: instructor.ID, IdentityID: identity.ID, Created: true}, nil
}

// ResolveLearner looks a learner up by external code. The display name of
// an existing learner is never updated.
func (r *Resolver) ResolveLearner(ctx context.Context, repo roster.Repository, externalCode, displayName string) (EntityRef, error) {
	if externalCode == "" {
		return EntityRef{}, shared.ValidationError("ingest", "ResolveLearner", "learner external code is empty")
	}

	existing, err := repo.FindLearnerByCode(ctx, externalCode)
	if err == nil {
		return EntityRef{Kind: roster.KindLearner, ID: existing.ID, IdentityID: existing.IdentityID}, nil
	}
	if !shared.IsNotFound(err) {
		return EntityRef{}, err
	}

	if displayName == "" {
		return EntityRef{}, shared.ValidationError("ingest", "ResolveLearner", "learner display name is empty")
	}

	identity, err := r.createIdentity(ctx, repo, displayName, roster.RoleLearner)
	if err != nil {
		return EntityRef{}, err
	}

	learner := &roster.Learner{
		IdentityID:   identity.ID,
		ExternalCode: externalCode,
		DisplayName:  displayName,
		Cohort:       r.cfg.DefaultCohort,
		EnrolledAt:   r.now(),
	}
	if err := repo.CreateLearner(ctx, learner); err != nil {
		return EntityRef{}, err
	}
	return EntityRef{Kind: roster.KindLearner, ID: learner.ID, IdentityID: identity.ID, Created: true}, nil
}

// ResolveSubject looks a subject up by name. Subjects carry no identity.
func (r *Resolver) ResolveSubject(ctx context.Context, repo roster.Repository, name string) (EntityRef, error) {
	if name == "" {
		return EntityRef{}, shared.ValidationError("ingest", "ResolveSubject", "subject name is empty")
	}

	existing, err := repo.FindSubjectByName(ctx, name)
	if err == nil {
		return EntityRef{Kind: roster.KindSubject, ID: existing.ID}, nil
	}
	if !shared.IsNotFound(err) {
		return EntityRef{}, err
	}

	subject := &roster.Subject{
		Name:        name,
		Description: roster.SubjectDescription(name),
		Difficulty:  roster.DefaultDifficulty,
	}
	if err := repo.CreateSubject(ctx, subject); err != nil {
		return EntityRef{}, err
	}
	return EntityRef{Kind: roster.KindSubject, ID: subject.ID, Created: true}, nil
}

func (r *Resolver) createIdentity(ctx context.Context, repo roster.Repository, displayName string, role roster.Role) (*roster.Identity, error) {
	handle, err := AllocateHandle(ctx, repo, displayName)
	if err != nil {
		return nil, err
	}
	hash, err := r.credential()
	if err != nil {
		return nil, err
	}

	identity := &roster.Identity{
		Handle:         handle,
		Email:          roster.EmailFor(handle, r.cfg.EmailDomain),
		Role:           role,
		CredentialHash: hash,
		Active:         true,
		CreatedAt:      r.now(),
	}
	if err := repo.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func (r *Resolver) credential() (string, error) {
	if r.credentialHash != "" {
		return r.credentialHash, nil
	}
	hash, err := r.hasher.Hash(r.cfg.DefaultCredential)
	if err != nil {
		return "", fmt.Errorf("hash default credential: %w", err)
	}
	r.credentialHash = hash
	return hash, nil
}

// AllocateHandle returns the first free handle derived from displayName:
// the normalised base, then base1, base2, ...
func AllocateHandle(ctx context.Context, repo roster.Repository, displayName string) (string, error) {
	base := roster.NormalizeHandle(displayName)
	if base == "" {
		return "", shared.ErrEmptyHandle
	}
	for attempt := 0; attempt < maxHandleAttempts; attempt++ {
		candidate := roster.CandidateHandle(base, attempt)
		taken, err := repo.HandleExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", shared.NewDomainError("roster", "AllocateHandle", shared.ErrAlreadyExists,
		fmt.Sprintf("no free handle for %q", displayName))
}
