package roles_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stepstudio/stepstudio/pkg/roles"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want roles.Role
		ok   bool
	}{
		{"USER", roles.User, true},
		{"user", roles.User, true},
		{" admin ", roles.Admin, true},
		{"Instructor", roles.Instructor, true},
		{"", "", false},
		{"ROOT", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, ok := roles.Parse(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSatisfies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		held     roles.Role
		required roles.Role
		want     bool
	}{
		{"admin satisfies admin", roles.Admin, roles.Admin, true},
		{"admin satisfies instructor", roles.Admin, roles.Instructor, true},
		{"admin satisfies user", roles.Admin, roles.User, true},
		{"instructor satisfies instructor", roles.Instructor, roles.Instructor, true},
		{"instructor does not satisfy admin", roles.Instructor, roles.Admin, false},
		{"instructor does not satisfy user", roles.Instructor, roles.User, false},
		{"user satisfies user", roles.User, roles.User, true},
		{"user does not satisfy instructor", roles.User, roles.Instructor, false},
		{"no requirement always satisfied", roles.User, "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.held.Satisfies(tt.required))
		})
	}
}

func TestCanAssume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		canonical roles.Role
		target    roles.Role
		want      bool
	}{
		{"admin to admin", roles.Admin, roles.Admin, true},
		{"admin to instructor", roles.Admin, roles.Instructor, true},
		{"admin to user", roles.Admin, roles.User, true},
		{"instructor to instructor", roles.Instructor, roles.Instructor, true},
		{"instructor to admin", roles.Instructor, roles.Admin, false},
		{"instructor to user", roles.Instructor, roles.User, false},
		{"user to user", roles.User, roles.User, true},
		{"user to instructor", roles.User, roles.Instructor, false},
		{"user to admin", roles.User, roles.Admin, false},
		{"unknown target rejected", roles.Admin, "ROOT", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.canonical.CanAssume(tt.target))
		})
	}
}
