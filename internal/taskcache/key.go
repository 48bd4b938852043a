package taskcache

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"

	"buildd/internal/faults"
)

// maxKeyHexLen keeps entry names within the common 255-byte file name limit.
const maxKeyHexLen = 254

// Key identifies a cache entry by an opaque hash, normally a fingerprint of the
// inputs that produced the entry. The zero Key is invalid.
type Key struct {
	hex string
}

// ParseKey accepts a hex-encoded hash of any width. Input is case-insensitive
// and normalized to lowercase.
func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || len(s)%2 != 0 {
		return Key{}, faults.Wrap(faults.ErrConfiguration, "taskcache", "parse key",
			fmt.Sprintf("key must be a non-empty, even number of hex characters, got %d", len(s)), nil)
	}
	if len(s) > maxKeyHexLen {
		return Key{}, faults.Wrap(faults.ErrConfiguration, "taskcache", "parse key",
			fmt.Sprintf("key longer than %d hex characters", maxKeyHexLen), nil)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return Key{}, faults.Wrap(faults.ErrConfiguration, "taskcache", "parse key", "key is not hex", err)
	}
	return Key{hex: s}, nil
}

// KeyFromDigest converts an algorithm-prefixed digest (e.g. "sha256:ab...")
// into a Key holding its encoded part.
func KeyFromDigest(d digest.Digest) (Key, error) {
	if err := d.Validate(); err != nil {
		return Key{}, faults.Wrap(faults.ErrConfiguration, "taskcache", "parse digest", string(d), err)
	}
	return ParseKey(d.Encoded())
}

// SumKey returns the sha256 key of data.
func SumKey(data []byte) Key {
	return Key{hex: digest.SHA256.FromBytes(data).Encoded()}
}

// String returns the lowercase hex form, which is also the entry file name.
func (k Key) String() string { return k.hex }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.hex == "" }

// Bytes decodes the key into raw hash bytes.
func (k Key) Bytes() []byte {
	b, _ := hex.DecodeString(k.hex)
	return b
}

// Digest returns the algorithm-qualified digest when the key length matches a
// known algorithm. Keys of other lengths cannot be content-verified.
func (k Key) Digest() (digest.Digest, bool) {
	var alg digest.Algorithm
	switch len(k.hex) {
	case 64:
		alg = digest.SHA256
	case 96:
		alg = digest.SHA384
	case 128:
		alg = digest.SHA512
	default:
		return "", false
	}
	return digest.NewDigestFromEncoded(alg, k.hex), true
}
