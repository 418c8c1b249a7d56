package ringsession

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := GenerateSessionMaterial()
	require.NoError(t, err)

	plaintext := []byte("the ring gossips at dawn")
	ciphertext, err := c.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := c.Open(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestSealReusesIVAcrossCalls(t *testing.T) {
	// Single-IV-reuse is intentional wire behavior: two Seal calls with
	// identical plaintext under the same Crypto produce identical
	// ciphertext, since the IV never changes within a session.
	c, err := GenerateSessionMaterial()
	require.NoError(t, err)

	plaintext := []byte("same message twice")
	c1, err := c.Seal(plaintext)
	require.NoError(t, err)
	c2, err := c.Seal(plaintext)
	require.NoError(t, err)
	require.Equal(t, c1, c2)
}

func TestOpenRejectsBadPadding(t *testing.T) {
	c, err := GenerateSessionMaterial()
	require.NoError(t, err)

	ciphertext, err := c.Seal([]byte("hello"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = c.Open(ciphertext)
	require.Error(t, err)
}

func TestSessionMaterialMarshalRoundTrip(t *testing.T) {
	c, err := GenerateSessionMaterial()
	require.NoError(t, err)

	packed := c.Marshal()
	require.Len(t, packed, KeySize+IVSize)

	rebuilt, err := UnmarshalSessionMaterial(packed)
	require.NoError(t, err)
	require.Equal(t, c.Key, rebuilt.Key)
	require.Equal(t, c.IV, rebuilt.IV)
}
