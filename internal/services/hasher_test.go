package services_test

import (
	"testing"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	hasher := services.NewBcryptHasher(bcrypt.MinCost)

	digest, err := hasher.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", digest)

	assert.True(t, hasher.Verify("secret1", digest))
	assert.False(t, hasher.Verify("secret2", digest))
}

func TestBcryptHasher_EmptyPlaintextIsInputError(t *testing.T) {
	hasher := services.NewBcryptHasher(bcrypt.MinCost)

	_, err := hasher.Hash("")
	require.Error(t, err)
	assert.Equal(t, apperror.KindInput, apperror.KindOf(err))
}

func TestBcryptHasher_VerifyNeverFailsLoudly(t *testing.T) {
	hasher := services.NewBcryptHasher(bcrypt.MinCost)

	assert.False(t, hasher.Verify("", "$2a$04$abcdefghijklmnopqrstuu"))
	assert.False(t, hasher.Verify("secret1", ""))
	assert.False(t, hasher.Verify("secret1", "not-a-bcrypt-digest"))
}

func TestBcryptHasher_InvalidCostFallsBackToDefault(t *testing.T) {
	hasher := services.NewBcryptHasher(bcrypt.MaxCost + 1)

	digest, err := hasher.Hash("secret1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
