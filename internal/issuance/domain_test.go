package issuance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintCertificateID(t *testing.T) {
	id, err := mintCertificateID()
	require.NoError(t, err)
	// 16 random bytes encode to 26 base32 characters.
	assert.Len(t, id, 26)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := mintCertificateID()
		require.NoError(t, err)
		require.False(t, seen[id], "certificate ids must not repeat")
		seen[id] = true
	}
}

func TestFingerprintIsStable(t *testing.T) {
	id, err := mintCertificateID()
	require.NoError(t, err)

	first := fingerprint(id)
	assert.Len(t, first, 8)
	assert.Equal(t, first, fingerprint(id))

	other, err := mintCertificateID()
	require.NoError(t, err)
	assert.NotEqual(t, first, fingerprint(other))
}
