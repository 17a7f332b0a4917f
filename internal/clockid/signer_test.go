package clockid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testRing(t *testing.T) *KeyRing {
	t.Helper()
	ring, err := NewKeyRing("k1", map[string][]byte{
		"k1": []byte("first-secret-do-not-use-in-prod"),
		"k0": []byte("retired-secret-still-verifiable"),
	})
	require.NoError(t, err)
	return ring
}

func TestKeyRingRoundTrip(t *testing.T) {
	ring := testRing(t)
	payload := []byte("interview=abc123;exp=1999999999")

	tag := ring.Sign(payload)
	require.NoError(t, ring.Verify(ring.ActiveKeyID(), payload, tag))
}

func TestKeyRingRejectsSingleBitFlip(t *testing.T) {
	ring := testRing(t)
	payload := []byte("interview=abc123;exp=1999999999")
	tag := ring.Sign(payload)

	flipped := append([]byte(nil), tag...)
	flipped[0] ^= 0x01

	err := ring.Verify(ring.ActiveKeyID(), payload, flipped)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestKeyRingRotationKeepsOldKeyVerifiable(t *testing.T) {
	ring := testRing(t)
	payload := []byte("interview=xyz;exp=1")

	oldTag, err := ring.SignWith("k0", payload)
	require.NoError(t, err)
	require.NoError(t, ring.Verify("k0", payload, oldTag))

	newTag := ring.Sign(payload)
	require.NotEqual(t, oldTag, newTag)
	require.NoError(t, ring.Verify(ring.ActiveKeyID(), payload, newTag))
}

func TestKeyRingUnknownKeyID(t *testing.T) {
	ring := testRing(t)
	_, err := ring.SignWith("missing", []byte("x"))
	require.ErrorIs(t, err, ErrUnknownKey)

	err = ring.Verify("missing", []byte("x"), []byte("y"))
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestNewKeyRingRejectsMissingActiveOrEmptySecret(t *testing.T) {
	_, err := NewKeyRing("k1", map[string][]byte{"k0": []byte("secret")})
	require.Error(t, err)

	_, err = NewKeyRing("k1", map[string][]byte{"k1": nil})
	require.Error(t, err)
}
