package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPrefix is the largest prefix the 4-digit certificate format can carry.
// An allocation that would step past it fails with SequenceExhaustedError.
const MaxPrefix = 9999

// CertificateNumber is the strictly paired prefix/sequence identifier issued
// to a participant. The prefix denotes the physical ledger binder, the
// sequence the page within it; both always advance together, so a contiguous
// run keeps a constant offset between the two.
type CertificateNumber struct {
	Prefix int
	Seq    int
}

// String formats the number as "PPPP-S" with a zero-padded 4-digit prefix.
func (n CertificateNumber) String() string {
	return fmt.Sprintf("%04d-%d", n.Prefix, n.Seq)
}

// Less orders numbers by prefix, then by sequence.
func (n CertificateNumber) Less(other CertificateNumber) bool {
	if n.Prefix != other.Prefix {
		return n.Prefix < other.Prefix
	}
	return n.Seq < other.Seq
}

// Next returns the double-incremented successor, or SequenceExhaustedError
// when the prefix would exceed the formatting capacity.
func (n CertificateNumber) Next() (CertificateNumber, error) {
	next := CertificateNumber{Prefix: n.Prefix + 1, Seq: n.Seq + 1}
	if next.Prefix > MaxPrefix {
		return CertificateNumber{}, SequenceExhaustedError{Prefix: next.Prefix}
	}
	return next, nil
}

// ParseCertificateNumber parses a "PPPP-S" formatted value.
func ParseCertificateNumber(value string) (CertificateNumber, error) {
	prefixPart, seqPart, ok := strings.Cut(value, "-")
	if !ok {
		return CertificateNumber{}, ValidationError{Field: "unique_number", Reason: fmt.Sprintf("%q is not in PPPP-S form", value)}
	}
	prefix, err := strconv.Atoi(prefixPart)
	if err != nil || prefix < 0 || prefix > MaxPrefix || len(prefixPart) != 4 {
		return CertificateNumber{}, ValidationError{Field: "unique_number", Reason: fmt.Sprintf("invalid prefix in %q", value)}
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 0 {
		return CertificateNumber{}, ValidationError{Field: "unique_number", Reason: fmt.Sprintf("invalid sequence in %q", value)}
	}
	return CertificateNumber{Prefix: prefix, Seq: seq}, nil
}
