package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces removed", "Jane Doe", "janedoe"},
		{"lower case input", "jane doe", "janedoe"},
		{"punctuation removed", "Mr. O'Brien, Jr.", "mrobrienjr"},
		{"tabs and newlines", "Ann\tMarie\nLee", "annmarielee"},
		{"non ascii letters kept", "Émile Zola", "émilezola"},
		{"only punctuation", " . , ' ", ""},
		{"empty", "", ""},
		{"hyphen kept", "Mary-Jane", "mary-jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHandle(tt.in))
		})
	}
}

func TestCandidateHandle(t *testing.T) {
	assert.Equal(t, "janedoe", CandidateHandle("janedoe", 0))
	assert.Equal(t, "janedoe1", CandidateHandle("janedoe", 1))
	assert.Equal(t, "janedoe12", CandidateHandle("janedoe", 12))
}

func TestKindRole(t *testing.T) {
	role, ok := KindInstructor.Role()
	assert.True(t, ok)
	assert.Equal(t, RoleInstructor, role)

	role, ok = KindLearner.Role()
	assert.True(t, ok)
	assert.Equal(t, RoleLearner, role)

	_, ok = KindSubject.Role()
	assert.False(t, ok)
}

func TestEmailFor(t *testing.T) {
	assert.Equal(t, "janedoe@tutoring.com", EmailFor("janedoe", "tutoring.com"))
}
