package taskcache_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"

	"buildd/internal/faults"
	"buildd/internal/taskcache"
)

func TestParseKeyNormalizesCase(t *testing.T) {
	upper := strings.Repeat("AB", 32)
	key, err := taskcache.ParseKey(upper)
	if err != nil {
		t.Fatalf("ParseKey returned error: %v", err)
	}
	if key.String() != strings.ToLower(upper) {
		t.Fatalf("expected lowercase key, got %q", key.String())
	}
	again, err := taskcache.ParseKey(key.String())
	if err != nil {
		t.Fatal(err)
	}
	if again != key {
		t.Fatal("expected keys parsed from equal hex to compare equal")
	}
	if len(key.Bytes()) != 32 {
		t.Fatalf("expected 32 raw bytes, got %d", len(key.Bytes()))
	}
}

func TestParseKeyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "too long for a file name", input: strings.Repeat("a", 256)},
		{name: "odd length", input: strings.Repeat("a", 41)},
		{name: "not hex", input: strings.Repeat("zz", 20)},
		{name: "temp name", input: "." + strings.Repeat("a", 63)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := taskcache.ParseKey(tt.input)
			if !errors.Is(err, faults.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestParseKeyAcceptsAnyWidth(t *testing.T) {
	for _, input := range []string{
		"0f",
		"9e107d9d372bb6826bd81d3542a419d6",
		strings.Repeat("ab", 20),
		strings.Repeat("cd", 64),
	} {
		key, err := taskcache.ParseKey(input)
		if err != nil {
			t.Fatalf("ParseKey(%q) returned error: %v", input, err)
		}
		if key.String() != input {
			t.Fatalf("ParseKey(%q) = %q", input, key.String())
		}
	}
	md5, _ := taskcache.ParseKey("9e107d9d372bb6826bd81d3542a419d6")
	if _, ok := md5.Digest(); ok {
		t.Fatal("128-bit key names no verifiable digest algorithm")
	}
}

func TestKeyFromDigest(t *testing.T) {
	d := digest.FromString("compiled output")
	key, err := taskcache.KeyFromDigest(d)
	if err != nil {
		t.Fatalf("KeyFromDigest returned error: %v", err)
	}
	if key.String() != d.Encoded() {
		t.Fatalf("expected %s, got %s", d.Encoded(), key.String())
	}
	back, ok := key.Digest()
	if !ok || back != d {
		t.Fatalf("expected round trip to %s, got %s (ok=%v)", d, back, ok)
	}

	if _, err := taskcache.KeyFromDigest(digest.Digest("sha256:nothex")); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error for invalid digest, got %v", err)
	}
}

func TestSumKey(t *testing.T) {
	key := taskcache.SumKey([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if key.String() != want {
		t.Fatalf("expected %s, got %s", want, key.String())
	}
	if key.IsZero() {
		t.Fatal("expected non-zero key")
	}
	if !(taskcache.Key{}).IsZero() {
		t.Fatal("expected zero key")
	}
}

func TestKeyDigestUnknownLength(t *testing.T) {
	key, err := taskcache.ParseKey(strings.Repeat("0a", 20))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := key.Digest(); ok {
		t.Fatal("expected no digest for 160-bit key")
	}
}
