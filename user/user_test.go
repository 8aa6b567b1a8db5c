package user

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	u, err := New("  Ana@Example.com ", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", u.Email)
	require.NotEqual(t, "hunter2", u.PasswordHash)
	require.NoError(t, VerifyPassword(u.PasswordHash, "hunter2"))
	require.Error(t, VerifyPassword(u.PasswordHash, "hunter3"))
}

func TestNewRejectsBadCredentials(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"empty email", "", "pw", ErrInvalidEmail},
		{"no at sign", "ana.example.com", "pw", ErrInvalidEmail},
		{"display name", "Ana <ana@example.com>", "pw", ErrInvalidEmail},
		{"blank password", "ana@example.com", "", ErrBlankPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.email, tt.password)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
