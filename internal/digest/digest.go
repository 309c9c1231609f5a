// Package digest computes stable, content-addressed identifiers for
// coverage bitmaps. It has no dependency on the scheduler types; it only
// ever sees raw edge-hit vectors, so any package may import it without risk
// of a cycle.
//
// Grounded on internal/coverage/tracker.go's bitmap hashing and
// internal/analyzer/tlsh.go's fuzzy-hash analyzer from the teacher repo.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/glaslos/tlsh"
)

// DigestExact returns a stable hex-encoded SHA256 digest of a coverage
// bitmap. Identical bitmaps (same length, same entries) always produce the
// same digest, regardless of how they were reached; zero entries and length
// are hashed too, so [1, 0] and [1] digest differently.
func DigestExact(bitmap []uint32) string {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, edge := range bitmap {
		binary.LittleEndian.PutUint32(buf, edge)
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ErrTooSmall is returned by DigestTLSH when the bitmap is too small for a
// meaningful fuzzy hash (TLSH needs a minimum amount of content).
var ErrTooSmall = errors.New("digest: bitmap too small for tlsh")

// MinTLSHEdges mirrors analyzer.TLSHConfig.MinDataSize's intent, scaled to
// edge counts instead of raw bytes.
const MinTLSHEdges = 50

// DigestTLSH computes a locality-sensitive fuzzy hash over the bitmap, so
// that coverage profiles which are *similar but not identical* land in
// nearby buckets instead of being treated as wholly unrelated. Opt-in:
// callers fall back to DigestExact when the bitmap is too small or hashing
// fails.
func DigestTLSH(bitmap []uint32) (string, error) {
	if len(bitmap) < MinTLSHEdges {
		return "", ErrTooSmall
	}

	buf := make([]byte, len(bitmap)*4)
	for i, edge := range bitmap {
		binary.LittleEndian.PutUint32(buf[i*4:], edge)
	}

	hash, err := tlsh.HashBytes(buf)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}
