package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, expiresAt, err := signer.Generate("sub-1", "uploads/file.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	submissionID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", submissionID)
	assert.Equal(t, "uploads/file.pdf", relPath)
}

func TestSignedURLTamperedSignature(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, _, err := signer.Generate("sub-1", "uploads/file.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[3] = strings.Repeat("0", len(parts[3]))
	_, _, _, err = signer.Parse(strings.Join(parts, "."))
	assert.Error(t, err)
}

func TestSignedURLTamperedPath(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, _, err := signer.Generate("sub-1", "uploads/file.pdf")
	require.NoError(t, err)

	other, _, err := signer.Generate("sub-1", "uploads/other.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	otherParts := strings.Split(other, ".")
	parts[2] = otherParts[2]
	_, _, _, err = signer.Parse(strings.Join(parts, "."))
	assert.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("sub-1", "uploads/file.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	assert.ErrorContains(t, err, "expired")
}

func TestSignedURLWrongSecret(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)
	other := NewSignedURLSigner("other-secret", time.Minute)

	token, _, err := signer.Generate("sub-1", "uploads/file.pdf")
	require.NoError(t, err)

	_, _, _, err = other.Parse(token)
	assert.Error(t, err)
}
