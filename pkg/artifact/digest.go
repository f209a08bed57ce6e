package artifact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrDigestMismatch is returned when an artifact does not hash to its
// expected digest.
var ErrDigestMismatch = errors.New("artifact digest mismatch")

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// ParseDigest parses a hex digest, optionally prefixed with "blake3:".
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimPrefix(strings.TrimSpace(s), "blake3:")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("parse digest: got %d bytes, want %d", len(raw), len(d))
	}
	copy(d[:], raw)
	return d, nil
}

// String returns the prefixed hex form accepted by ParseDigest.
func (d Digest) String() string {
	return "blake3:" + hex.EncodeToString(d[:])
}

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Sum hashes everything read from r.
func Sum(r io.Reader) (Digest, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// VerifyingReader hashes the stream as it is read and replaces the final
// io.EOF with ErrDigestMismatch when the content does not match.
type VerifyingReader struct {
	r    io.Reader
	h    *blake3.Hasher
	want Digest
	done bool
}

// NewVerifyingReader wraps r to check want.
func NewVerifyingReader(r io.Reader, want Digest) *VerifyingReader {
	return &VerifyingReader{r: r, h: blake3.New(), want: want}
}

func (v *VerifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		v.h.Write(p[:n])
	}
	if err == io.EOF && !v.done {
		v.done = true
		var got Digest
		copy(got[:], v.h.Sum(nil))
		if got != v.want {
			return n, fmt.Errorf("%w: got %s, want %s", ErrDigestMismatch, got, v.want)
		}
	}
	return n, err
}
