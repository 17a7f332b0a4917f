package clockid

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

// ErrUnknownKey is returned when a signature names a key id the
// KeyRing has no secret for.
var ErrUnknownKey = errors.New("clockid: unknown signing key")

// ErrInvalidSignature is returned when a tag does not verify against
// the named key's secret.
var ErrInvalidSignature = errors.New("clockid: invalid signature")

// KeyRing holds the rotating set of HMAC secrets used to sign and
// verify access tokens, keyed by key id (the token payload's "k"
// field / the HMAC_SECRET_{key_id} environment convention).
type KeyRing struct {
	active string
	keys   map[string][]byte
}

// NewKeyRing builds a ring from id->secret pairs. active names the key
// id newly issued tokens are signed with; all keys remain valid for
// verification so in-flight tokens survive a rotation.
func NewKeyRing(active string, keys map[string][]byte) (*KeyRing, error) {
	if _, ok := keys[active]; !ok {
		return nil, errors.New("clockid: active key id not present in key set")
	}
	copied := make(map[string][]byte, len(keys))
	for k, v := range keys {
		if len(v) == 0 {
			return nil, errors.New("clockid: empty secret for key id " + k)
		}
		copied[k] = append([]byte(nil), v...)
	}
	return &KeyRing{active: active, keys: copied}, nil
}

// ActiveKeyID is the key id new signatures are produced with.
func (r *KeyRing) ActiveKeyID() string { return r.active }

// Sign computes the HMAC-SHA256 tag of payload under the active key.
func (r *KeyRing) Sign(payload []byte) []byte {
	return sign(r.keys[r.active], payload)
}

// SignWith signs under an explicit key id, for tests that pin rotation.
func (r *KeyRing) SignWith(keyID string, payload []byte) ([]byte, error) {
	secret, ok := r.keys[keyID]
	if !ok {
		return nil, ErrUnknownKey
	}
	return sign(secret, payload), nil
}

// Verify checks tag against payload under the named key id in
// constant time, independent of which key produced a match.
func (r *KeyRing) Verify(keyID string, payload, tag []byte) error {
	secret, ok := r.keys[keyID]
	if !ok {
		return ErrUnknownKey
	}
	want := sign(secret, payload)
	if subtle.ConstantTimeCompare(want, tag) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func sign(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
