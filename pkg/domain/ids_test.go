package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "registrum/pkg/domain-errors"
)

func TestParseRecordID(t *testing.T) {
	original := NewRecordID()

	parsed, err := ParseRecordID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	_, err = ParseRecordID("not-a-uuid")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestParseSessionID(t *testing.T) {
	original := NewSessionID()

	parsed, err := ParseSessionID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	_, err = ParseSessionID("")
	assert.Error(t, err)
}

func TestParseNationalID(t *testing.T) {
	cases := []struct {
		name  string
		input string
		valid bool
	}{
		{"ten digits", "1000000001", true},
		{"nine digits", "100000001", false},
		{"eleven digits", "10000000011", false},
		{"letters", "100000000a", false},
		{"empty", "", false},
		{"spaces", "100000 001", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseNationalID(tc.input)
			if tc.valid {
				require.NoError(t, err)
				assert.Equal(t, tc.input, parsed.String())
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
			}
		})
	}
}

func TestParseEntityRole(t *testing.T) {
	for _, role := range AllEntityRoles() {
		parsed, err := ParseEntityRole(role.String())
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
	}

	_, err := ParseEntityRole("bank")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseEntityRole("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
