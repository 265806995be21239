package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	k := NewKeyring(nil)
	msg := []byte(`{"merkle_root":"abc123"}`)

	sig, err := k.Sign(msg)
	require.NoError(t, err)
	assert.True(t, k.Verify(msg, sig))
	assert.False(t, k.Verify([]byte("tampered"), sig))
	assert.False(t, k.Verify(msg, "not-hex"))
}

func TestDeriveForScopeIsDeterministic(t *testing.T) {
	master := NewKeyring(nil)

	a, err := master.DeriveForScope("policy-2026.08")
	require.NoError(t, err)
	b, err := master.DeriveForScope("policy-2026.08")
	require.NoError(t, err)
	other, err := master.DeriveForScope("policy-2026.09")
	require.NoError(t, err)

	assert.Equal(t, a.PublicKeyHex(), b.PublicKeyHex())
	assert.NotEqual(t, a.PublicKeyHex(), other.PublicKeyHex())
	assert.NotEqual(t, master.PublicKeyHex(), a.PublicKeyHex())
}

func TestDeriveForScopeRejectsEmptyScope(t *testing.T) {
	k := NewKeyring(nil)
	_, err := k.DeriveForScope("")
	assert.ErrorIs(t, err, ErrEmptyScope)
}
