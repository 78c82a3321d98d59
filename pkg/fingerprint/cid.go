package fingerprint

import (
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CID renders a sha256 fingerprint as a CIDv1 with the raw codec.
// Other algorithms have no multihash code and are rejected.
func CID(algo Algorithm, fp Fingerprint) (cid.Cid, error) {
	if algo != SHA256 {
		return cid.Undef, errors.Wrapf(errors.ErrInvalidAlgorithm, "no CID form for %q", algo)
	}
	if fp.IsZero() {
		return cid.Undef, errors.ErrMalformedFingerprint
	}
	mh, err := multihash.Encode(fp.Bytes(), multihash.SHA2_256)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "encoding multihash")
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// FromCID extracts the sha256 fingerprint of a raw CIDv1 string.
func FromCID(s string) (Fingerprint, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return Fingerprint{}, errors.Wrapf(errors.ErrMalformedFingerprint, "%q: %v", s, err)
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return Fingerprint{}, errors.Wrapf(errors.ErrMalformedFingerprint, "%q: %v", s, err)
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != Size {
		return Fingerprint{}, errors.Wrapf(errors.ErrMalformedFingerprint, "%q: not a sha2-256 CID", s)
	}
	return FromDigest(dec.Digest), nil
}
