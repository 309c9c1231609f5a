// Package crashsim groups crash-inducing inputs by the similarity of the
// stack trace or panic message they produced, so triage sees one bucket per
// root cause instead of one entry per byte-distinct input that happens to
// hit the same bug.
//
// Grounded on internal/analyzer/simhash.go's SimHasher from the teacher
// repo. The teacher used SimHash to cluster near-duplicate HTTP responses;
// its HTML-structure path (ComputeFromHTML, ExtractHTMLStructure,
// StructuralSimilarity) has no analog over subprocess crash output and is
// dropped. The n-gram text hashing core, ignore-pattern preprocessing, and
// Hamming-distance comparison survive unchanged, re-tuned to strip addresses
// and line numbers instead of CSRF tokens.
package crashsim

import (
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// HashBits is the width of a Signature.
const HashBits = 64

// Signature is a locality-sensitive hash of crash output: two crashes whose
// signatures differ in only a handful of bits are very likely the same
// underlying defect reached through different inputs.
type Signature uint64

// Hasher computes Signatures from crash stderr/panic text.
type Hasher struct {
	nGramSize      int
	caseSensitive  bool
	ignoreNumbers  bool
	ignorePatterns []*regexp.Regexp
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithNGramSize sets the n-gram size used for tokenization.
func WithNGramSize(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.nGramSize = n
		}
	}
}

// WithCaseSensitive preserves case instead of folding to lowercase.
func WithCaseSensitive(enabled bool) Option {
	return func(h *Hasher) {
		h.caseSensitive = enabled
	}
}

// WithIgnorePatterns adds regexes whose matches are blanked out before
// hashing, in addition to the defaults.
func WithIgnorePatterns(patterns []string) Option {
	return func(h *Hasher) {
		for _, p := range patterns {
			if re, err := regexp.Compile(p); err == nil {
				h.ignorePatterns = append(h.ignorePatterns, re)
			}
		}
	}
}

// NewHasher builds a Hasher pre-loaded with patterns that strip the parts of
// a crash report that vary run to run without changing its identity:
// memory addresses, line numbers, PIDs, and timestamps.
func NewHasher(opts ...Option) *Hasher {
	h := &Hasher{
		nGramSize:     3,
		caseSensitive: false,
		ignoreNumbers: true,
	}

	defaults := []string{
		`0x[0-9a-fA-F]+`,        // pointers/addresses
		`\d{4}-\d{2}-\d{2}`,     // dates
		`\d{2}:\d{2}:\d{2}`,     // times
		`\bpid\s*[:=]?\s*\d+\b`, // process ids
		`:\d+:\d+\b`,            // file:line:col
		`\b[a-f0-9]{32,64}\b`,   // hex digests
	}
	for _, p := range defaults {
		if re, err := regexp.Compile(p); err == nil {
			h.ignorePatterns = append(h.ignorePatterns, re)
		}
	}

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Compute returns the Signature of a crash report's text.
func (h *Hasher) Compute(text string) Signature {
	processed := h.preprocess(text)
	features := h.extractFeatures(processed)
	if len(features) == 0 {
		return 0
	}
	return computeSignature(features)
}

func (h *Hasher) preprocess(text string) string {
	result := text
	for _, re := range h.ignorePatterns {
		result = re.ReplaceAllString(result, " ")
	}
	result = normalizeWhitespace(result)
	if !h.caseSensitive {
		result = strings.ToLower(result)
	}
	if h.ignoreNumbers {
		result = removeNumbers(result)
	}
	return result
}

func (h *Hasher) extractFeatures(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) < h.nGramSize {
		return words
	}
	features := make([]string, 0, len(words)-h.nGramSize+1)
	for i := 0; i <= len(words)-h.nGramSize; i++ {
		features = append(features, strings.Join(words[i:i+h.nGramSize], " "))
	}
	return features
}

func computeSignature(features []string) Signature {
	var vector [HashBits]int
	for _, feature := range features {
		hash := hashFeature(feature)
		for i := 0; i < HashBits; i++ {
			if hash&(1<<i) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}
	var sig Signature
	for i := 0; i < HashBits; i++ {
		if vector[i] > 0 {
			sig |= 1 << i
		}
	}
	return sig
}

func hashFeature(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// Distance returns the Hamming distance between two signatures, from 0
// (identical) to HashBits (completely different).
func (s Signature) Distance(other Signature) int {
	diff := s ^ other
	count := 0
	for diff != 0 {
		count++
		diff &= diff - 1
	}
	return count
}

// IsSimilar reports whether two signatures are within threshold bits of
// each other. A threshold of 3-8 is typical for stack-trace clustering.
func (s Signature) IsSimilar(other Signature, threshold int) bool {
	return s.Distance(other) <= threshold
}

func normalizeWhitespace(content string) string {
	re := regexp.MustCompile(`\s+`)
	return strings.TrimSpace(re.ReplaceAllString(content, " "))
}

func removeNumbers(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if !unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
