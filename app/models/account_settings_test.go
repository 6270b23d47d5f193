package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountSettingsIssueAPIKey(t *testing.T) {
	as := &AccountSettings{AccountID: 1}

	key, err := as.IssueAPIKey()
	require.NoError(t, err)
	require.NotEmpty(t, key)

	assert.True(t, strings.HasPrefix(key, "trd_"))
	assert.NotEmpty(t, as.APIKeyHash)
	assert.NotEmpty(t, as.APIKeyPrefix)
	assert.NotNil(t, as.APIKeyCreatedAt)
	assert.Nil(t, as.APIKeyLastUsedAt)
	assert.True(t, as.HasActiveAPIKey())
	assert.Equal(t, HashAPIKey(key), as.APIKeyHash)
}

func TestAccountSettingsIssueAPIKeyRotates(t *testing.T) {
	as := &AccountSettings{AccountID: 1}

	first, err := as.IssueAPIKey()
	require.NoError(t, err)
	second, err := as.IssueAPIKey()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, HashAPIKey(second), as.APIKeyHash)
	assert.NotEqual(t, HashAPIKey(first), as.APIKeyHash)
}

func TestAccountSettingsRevokeAPIKey(t *testing.T) {
	as := &AccountSettings{AccountID: 99}
	_, err := as.IssueAPIKey()
	require.NoError(t, err)

	as.RevokeAPIKey()

	assert.False(t, as.HasActiveAPIKey())
	assert.Equal(t, "", as.APIKeyHash)
	assert.Equal(t, "", as.APIKeyPrefix)
	assert.NotNil(t, as.APIKeyRevokedAt)
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("trd_abc"), HashAPIKey("  trd_abc\n"))
	assert.NotEqual(t, HashAPIKey("trd_abc"), HashAPIKey("trd_abd"))
}
