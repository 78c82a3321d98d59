package fingerprint

import (
	"fmt"
	"io"

	"github.com/dara-forge/forge/pkg/errors"
)

// VerificationStatus is the outcome class of a verification.
type VerificationStatus int

const (
	// Verified means the computed fingerprint matched.
	Verified VerificationStatus = iota + 1
	// Mismatch means the content hashed to a different fingerprint.
	Mismatch
	// Failed means verification could not be performed.
	Failed
)

func (s VerificationStatus) String() string {
	switch s {
	case Verified:
		return "verified"
	case Mismatch:
		return "mismatch"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// VerificationResult carries both fingerprints so callers can report them.
// Actual is set whenever hashing completed, including on Mismatch.
type VerificationResult struct {
	Status   VerificationStatus
	Expected Fingerprint
	Actual   Fingerprint
	Err      error
}

// OK reports whether the content was verified.
func (r VerificationResult) OK() bool { return r.Status == Verified }

func (r VerificationResult) String() string {
	switch r.Status {
	case Mismatch:
		return fmt.Sprintf("mismatch: expected %s, computed %s", r.Expected, r.Actual)
	case Failed:
		return fmt.Sprintf("failed: %v", r.Err)
	default:
		return r.Status.String()
	}
}

// Verifier recomputes fingerprints and compares them with expectations.
type Verifier struct {
	algo Algorithm
}

// NewVerifier creates a verifier for the given algorithm; empty selects the default.
func NewVerifier(algo Algorithm) *Verifier {
	if algo == "" {
		algo = DefaultAlgorithm
	}
	return &Verifier{algo: algo}
}

// Algorithm returns the configured algorithm.
func (v *Verifier) Algorithm() Algorithm { return v.algo }

// Compute returns the fingerprint of data under the verifier's algorithm.
func (v *Verifier) Compute(data []byte) (Fingerprint, error) {
	return Compute(v.algo, data)
}

// Verify hashes data and compares it with expected, which may use any hex case.
// A mismatch is a result, not an error.
func (v *Verifier) Verify(data []byte, expected string) VerificationResult {
	want, err := Parse(expected)
	if err != nil {
		return VerificationResult{Status: Failed, Err: err}
	}
	return v.VerifyFingerprint(data, want)
}

// VerifyFingerprint is Verify with an already parsed expectation.
func (v *Verifier) VerifyFingerprint(data []byte, expected Fingerprint) VerificationResult {
	if expected.IsZero() {
		return VerificationResult{Status: Failed, Err: errors.Wrap(errors.ErrMalformedFingerprint, "empty expected fingerprint")}
	}
	got, err := Compute(v.algo, data)
	if err != nil {
		return VerificationResult{Status: Failed, Expected: expected, Err: err}
	}
	return compare(expected, got)
}

// VerifyReader streams r through the hasher before comparing.
func (v *Verifier) VerifyReader(r io.Reader, expected string) VerificationResult {
	want, err := Parse(expected)
	if err != nil {
		return VerificationResult{Status: Failed, Err: err}
	}
	got, _, err := ComputeReader(v.algo, r)
	if err != nil {
		return VerificationResult{Status: Failed, Expected: want, Err: err}
	}
	return compare(want, got)
}

func compare(expected, actual Fingerprint) VerificationResult {
	res := VerificationResult{Expected: expected, Actual: actual, Status: Verified}
	if !expected.Equal(actual) {
		res.Status = Mismatch
	}
	return res
}
