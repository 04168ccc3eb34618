package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("secret", time.Hour)
	userID := uuid.New()

	token, err := m.GenerateToken(userID)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestManager_Rejects(t *testing.T) {
	m := NewManager("secret", time.Hour)
	token, err := NewManager("other", time.Hour).GenerateToken(uuid.New())
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)

	// NewManager replaces a non-positive ttl with the default
	m.ttl = -time.Minute
	expired, err := m.GenerateToken(uuid.New())
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.Error(t, err)

	_, err = m.ValidateToken("not-a-token")
	assert.Error(t, err)
}
