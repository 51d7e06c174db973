package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail(t *testing.T) {
	for _, ok := range []string{"tech@example.com", "a.b+c@sub.domain.io", "new@x.com"} {
		assert.NoError(t, Email(ok), ok)
	}
	for _, bad := range []string{"", "plain", "no@tld", "two@@x.com", "sp ace@x.com", "@x.com"} {
		assert.ErrorIs(t, Email(bad), ErrInvalid, bad)
	}
}

func TestPassword(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"short1", "Password must be at least 8 characters"},
		{"12345678", "Password must contain at least one letter"},
		{"abcdefgh", "Password must contain at least one number"},
		{strings.Repeat("a1", 51), "Password must be at most 100 characters"},
		{"password1", ""},
	}
	for _, tc := range cases {
		err := Password(tc.in)
		if tc.want == "" {
			assert.NoError(t, err, tc.in)
			continue
		}
		require.Error(t, err, tc.in)
		assert.Equal(t, tc.want, err.Error())

		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "password", verr.Field)
	}
}

func TestLogin(t *testing.T) {
	assert.NoError(t, Login("a@b.co", "x"))
	assert.EqualError(t, Login("", "x"), "Please enter email and password")
	assert.EqualError(t, Login("  ", "x"), "Please enter email and password")
	assert.EqualError(t, Login("a@b.co", ""), "Please enter email and password")
}

func TestRegistration(t *testing.T) {
	assert.NoError(t, Registration("new@x.com", "password1", "password1", "Jane Doe"))
	assert.EqualError(t, Registration("new@x.com", "password1", "password1", " "), "Please fill in all fields")
	assert.EqualError(t, Registration("new@x.com", "password1", "password2", "Jane Doe"), "Passwords do not match")
	assert.EqualError(t, Registration("new@x.com", "pass", "pass", "Jane Doe"), "Password must be at least 8 characters")
	assert.EqualError(t, Registration("new", "password1", "password1", "Jane Doe"), "Please enter a valid email address")
	assert.EqualError(t, Registration("new@x.com", "password1", "password1", "J"), "Full name must be between 2 and 100 characters")
}
