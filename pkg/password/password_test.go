package password

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(2)

	hash, err := h.Hash(context.Background(), "secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.True(t, h.Verify("secret123", hash))
	assert.False(t, h.Verify("wrong-password", hash))
}

func TestHashRespectsContextCancellation(t *testing.T) {
	h := NewHasher(1)

	// Occupy the single hashing slot.
	h.sem <- struct{}{}
	defer func() { <-h.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Hash(ctx, "secret123")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInFlightReflectsOccupiedSlots(t *testing.T) {
	h := NewHasher(2)
	assert.Equal(t, 0, h.InFlight())

	h.sem <- struct{}{}
	assert.Equal(t, 1, h.InFlight())

	<-h.sem
	assert.Equal(t, 0, h.InFlight())
}

func TestHashesAreSalted(t *testing.T) {
	h := NewHasher(2)

	first, err := h.Hash(context.Background(), "secret123")
	require.NoError(t, err)
	second, err := h.Hash(context.Background(), "secret123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("secret123", first))
	assert.True(t, h.Verify("secret123", second))
}
