// Package objectid implements the content-addressing scheme shared by
// every object kind in the store: a 64-character lowercase hex digest of
// a fixed 256-bit hash over an object's canonical bytes.
//
// Hashing and verification go through github.com/opencontainers/go-digest,
// which already provides a streaming Digester and a Verifier (an
// io.Writer that reports whether what was written matches an expected
// digest) for exactly this purpose. go-digest's wire form carries an
// algorithm prefix ("sha256:<hex>"); ID strips it, since the spec's ID
// format is the bare hex digest.
package objectid

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	digest "github.com/opencontainers/go-digest"
)

// Algorithm is the fixed hash algorithm backing every object ID.
const Algorithm = digest.SHA256

// Length is the fixed length, in hex characters, of an ID.
const Length = 64

// ID is a 64-character lowercase hex digest identifying a stored object.
type ID string

// Empty is the zero value of ID.
const Empty = ID("")

// Valid reports whether id is syntactically well formed: exactly Length
// lowercase hex characters. It does not check whether the object exists.
func (id ID) Valid() bool {
	if len(id) != Length {
		return false
	}
	_, err := hex.DecodeString(string(id))
	return err == nil && string(id) == toLower(string(id))
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func (id ID) String() string { return string(id) }

// FromBytes computes the ID of p.
func FromBytes(p []byte) ID {
	return fromDigest(Algorithm.FromBytes(p))
}

// Hasher returns a new streaming hash.Hash for Algorithm. Callers that
// need to hash content larger than fits comfortably in memory (chunked
// file uploads) should write through this instead of buffering.
func Hasher() hash.Hash {
	return Algorithm.Hash().New()
}

// FromHash finalizes h into an ID.
func FromHash(h hash.Hash) ID {
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// NewVerifier returns a digest.Verifier that checks streamed writes
// against want as they stream in. The store's ingestion path does not
// use it: it buffers each body and checks it with CheckBytes.
func NewVerifier(want ID) (digest.Verifier, error) {
	d, err := toDigest(want)
	if err != nil {
		return nil, err
	}
	return d.Verifier(), nil
}

// VerifyReader re-hashes r in full and reports whether it matches want.
func VerifyReader(r io.Reader, want ID) (bool, error) {
	v, err := NewVerifier(want)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(v, r); err != nil {
		return false, err
	}
	return v.Verified(), nil
}

func fromDigest(d digest.Digest) ID {
	return ID(d.Encoded())
}

func toDigest(id ID) (digest.Digest, error) {
	if !id.Valid() {
		return "", fmt.Errorf("objectid: malformed id %q", string(id))
	}
	d := digest.NewDigestFromEncoded(Algorithm, string(id))
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// ErrMismatch is returned when stored or uploaded bytes do not hash to
// the ID they are filed or asserted under.
type ErrMismatch struct {
	Want ID
	Got  ID
}

func (e ErrMismatch) Error() string {
	return fmt.Sprintf("object integrity check failed: expected %s, got %s", e.Want, e.Got)
}

// CheckBytes verifies that p hashes to want, returning ErrMismatch if not.
func CheckBytes(p []byte, want ID) error {
	got := FromBytes(p)
	if got != want {
		return ErrMismatch{Want: want, Got: got}
	}
	return nil
}
