package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
)

// EncodingVersion is the version of the canonical anchor input. It is part
// of the hashed envelope, so changing the encoding changes every anchor.
const EncodingVersion = 1

// Algorithm names the digest used to compute anchors.
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	BLAKE2b256 Algorithm = "blake2b-256"
)

// AnchorScheme selects the digest and the number of hex characters kept.
// A Width of zero keeps the full digest.
type AnchorScheme struct {
	Algorithm Algorithm
	Width     int
}

// DefaultScheme returns the full-length SHA-256 scheme.
func DefaultScheme() AnchorScheme {
	return AnchorScheme{Algorithm: SHA256}
}

// Validate checks that the algorithm is known and the width is usable.
func (s AnchorScheme) Validate() error {
	switch s.Algorithm {
	case SHA256, BLAKE2b256:
	default:
		return fmt.Errorf("unknown anchor algorithm %q", s.Algorithm)
	}
	if s.Width < 0 || s.Width > 2*sha256.Size {
		return fmt.Errorf("anchor width %d out of range [0, %d]", s.Width, 2*sha256.Size)
	}
	return nil
}

// CanonicalBytes returns the exact bytes hashed for e chained to previous:
// the RFC 8785 canonical JSON of {"v":1,"prev":previous,"event":{...}},
// where the event object holds every field of e except its anchor.
func CanonicalBytes(e Event, previous string) ([]byte, error) {
	if !utf8.ValidString(previous) {
		return nil, fmt.Errorf("%w: previous anchor %q is not valid UTF-8", ErrSerialization, previous)
	}
	fields, err := e.fields()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(map[string]any{
		"v":     EncodingVersion,
		"prev":  previous,
		"event": fields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return out, nil
}

// Compute returns the anchor of e chained to previous. It is pure: the same
// event content and previous anchor always give the same result.
func (s AnchorScheme) Compute(e Event, previous string) (string, error) {
	data, err := CanonicalBytes(e, previous)
	if err != nil {
		return "", err
	}

	var sum []byte
	switch s.Algorithm {
	case SHA256, "":
		h := sha256.Sum256(data)
		sum = h[:]
	case BLAKE2b256:
		h := blake2b.Sum256(data)
		sum = h[:]
	default:
		return "", fmt.Errorf("unknown anchor algorithm %q", s.Algorithm)
	}

	digest := hex.EncodeToString(sum)
	if s.Width > 0 && s.Width < len(digest) {
		digest = digest[:s.Width]
	}
	return digest, nil
}

// ComputeAnchor computes the anchor of e under DefaultScheme.
func ComputeAnchor(e Event, previous string) (string, error) {
	return DefaultScheme().Compute(e, previous)
}
