// Package fingerprint computes and verifies content fingerprints.
//
// A fingerprint is the 32-byte root digest of a byte sequence, rendered as a
// lowercase 0x-prefixed hex string. Fingerprints are values: identical input
// always yields an identical fingerprint on every platform.
package fingerprint

import (
	"encoding/hex"
	"strings"

	"github.com/dara-forge/forge/pkg/errors"
)

// Size is the length in bytes of every fingerprint digest.
const Size = 32

// Fingerprint is an immutable content identifier in canonical form.
type Fingerprint struct {
	digest [Size]byte
	set    bool
}

// Parse accepts a hex fingerprint with or without 0x prefix in any case.
func Parse(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != Size*2 {
		return Fingerprint{}, errors.Wrapf(errors.ErrMalformedFingerprint, "%q: want %d hex digits, got %d", s, Size*2, len(raw))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Fingerprint{}, errors.Wrapf(errors.ErrMalformedFingerprint, "%q: %v", s, err)
	}
	return FromDigest(b), nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests and constants.
func MustParse(s string) Fingerprint {
	fp, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return fp
}

// FromDigest builds a fingerprint from a raw digest. Digests shorter than Size
// are left-padded with zeros; longer digests keep their last Size bytes.
func FromDigest(b []byte) Fingerprint {
	var fp Fingerprint
	if len(b) > Size {
		b = b[len(b)-Size:]
	}
	copy(fp.digest[Size-len(b):], b)
	fp.set = true
	return fp
}

// String returns the canonical lowercase 0x-prefixed form.
func (f Fingerprint) String() string {
	if !f.set {
		return ""
	}
	return "0x" + hex.EncodeToString(f.digest[:])
}

// Bytes returns a copy of the raw digest.
func (f Fingerprint) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, f.digest[:])
	return out
}

// IsZero reports whether the fingerprint was never set.
func (f Fingerprint) IsZero() bool { return !f.set }

// Equal compares two fingerprints by digest.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.set == o.set && f.digest == o.digest
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*f = Fingerprint{}
		return nil
	}
	fp, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}
