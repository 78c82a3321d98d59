package fingerprint

import (
	"crypto/sha256"
	"hash"
	"io"

	"github.com/dara-forge/forge/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a content-addressing function.
type Algorithm string

// Supported algorithms.
const (
	// MerkleKeccak256 builds a binary keccak256 Merkle tree over fixed-size segments.
	MerkleKeccak256 Algorithm = "merkle-keccak256"
	// SHA256 is a flat SHA-256 digest of the whole stream.
	SHA256 Algorithm = "sha256"

	// DefaultAlgorithm is used when no algorithm is configured.
	DefaultAlgorithm = MerkleKeccak256
)

// SegmentSize is the leaf size of the Merkle tree.
const SegmentSize = 256 * 1024

// Domain-separation prefixes for leaf and interior nodes.
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// Algorithms lists every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{MerkleKeccak256, SHA256}
}

// Valid reports whether the algorithm is supported.
func (a Algorithm) Valid() bool {
	switch a {
	case MerkleKeccak256, SHA256:
		return true
	default:
		return false
	}
}

// Hasher accumulates input incrementally. Sum does not change the state,
// so more data can be written afterwards.
type Hasher interface {
	io.Writer
	Sum() Fingerprint
	Reset()
	Algorithm() Algorithm
}

// NewHasher returns a hasher for the given algorithm; an empty name selects the default.
func NewHasher(algo Algorithm) (Hasher, error) {
	if algo == "" {
		algo = DefaultAlgorithm
	}
	switch algo {
	case MerkleKeccak256:
		return newMerkleHasher(), nil
	case SHA256:
		return &flatHasher{h: sha256.New()}, nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidAlgorithm, "%q", algo)
	}
}

// Compute returns the fingerprint of data.
func Compute(algo Algorithm, data []byte) (Fingerprint, error) {
	h, err := NewHasher(algo)
	if err != nil {
		return Fingerprint{}, err
	}
	_, _ = h.Write(data)
	return h.Sum(), nil
}

// ComputeReader streams r through the hasher.
func ComputeReader(algo Algorithm, r io.Reader) (Fingerprint, int64, error) {
	h, err := NewHasher(algo)
	if err != nil {
		return Fingerprint{}, 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return Fingerprint{}, n, errors.Wrap(err, "hashing")
	}
	return h.Sum(), n, nil
}

type flatHasher struct {
	h hash.Hash
}

func (f *flatHasher) Write(p []byte) (int, error) { return f.h.Write(p) }
func (f *flatHasher) Sum() Fingerprint           { return FromDigest(f.h.Sum(nil)) }
func (f *flatHasher) Reset()                     { f.h.Reset() }
func (f *flatHasher) Algorithm() Algorithm       { return SHA256 }

// merkleHasher keeps only the pending segment and the leaf digests.
type merkleHasher struct {
	pending []byte
	leaves  [][Size]byte
}

func newMerkleHasher() *merkleHasher {
	return &merkleHasher{pending: make([]byte, 0, SegmentSize)}
}

func (m *merkleHasher) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		room := SegmentSize - len(m.pending)
		if room > len(p) {
			room = len(p)
		}
		m.pending = append(m.pending, p[:room]...)
		p = p[room:]
		if len(m.pending) == SegmentSize {
			m.leaves = append(m.leaves, hashLeaf(m.pending))
			m.pending = m.pending[:0]
		}
	}
	return n, nil
}

func (m *merkleHasher) Sum() Fingerprint {
	level := make([][Size]byte, len(m.leaves), len(m.leaves)+1)
	copy(level, m.leaves)
	if len(m.pending) > 0 || len(level) == 0 {
		level = append(level, hashLeaf(m.pending))
	}
	for len(level) > 1 {
		next := make([][Size]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashNode(level[i], level[i+1]))
		}
		level = next
	}
	return FromDigest(level[0][:])
}

func (m *merkleHasher) Reset() {
	m.pending = m.pending[:0]
	m.leaves = nil
}

func (m *merkleHasher) Algorithm() Algorithm { return MerkleKeccak256 }

func hashLeaf(segment []byte) [Size]byte {
	k := sha3.NewLegacyKeccak256()
	k.Write([]byte{leafPrefix})
	k.Write(segment)
	var out [Size]byte
	copy(out[:], k.Sum(nil))
	return out
}

func hashNode(left, right [Size]byte) [Size]byte {
	k := sha3.NewLegacyKeccak256()
	k.Write([]byte{nodePrefix})
	k.Write(left[:])
	k.Write(right[:])
	var out [Size]byte
	copy(out[:], k.Sum(nil))
	return out
}
