// Package mutator: AFL-style concrete mutators.
//
// Grounded on internal/mutator/afl.go from the teacher repo: bit flips,
// byte flips, arithmetic nudges, interesting-value substitution, splice,
// delete/insert, and a havoc stage chaining several of them. Trimmed from
// the teacher's thirteen variants to the subset a generic byte-stream
// fuzzer needs, with crypto/rand's secureRandomInt replaced throughout by
// the caller's own math/rand source.
package mutator

import (
	"encoding/binary"
	"math/rand"
)

// Interesting 8/16/32-bit values: the same boundary-probing constants AFL
// seeds its interest stage with.
var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

func clone(input []byte) []byte {
	out := make([]byte, len(input))
	copy(out, input)
	return out
}

// BitFlip flips a run of 1, 2, or 4 consecutive bits at a random position.
type BitFlip struct{ FlipBits int }

func (m BitFlip) Name() string {
	switch m.FlipBits {
	case 2:
		return "bitflip/2"
	case 4:
		return "bitflip/4"
	default:
		return "bitflip/1"
	}
}

func (m BitFlip) Mutate(rng *rand.Rand, input []byte) []byte {
	if len(input) == 0 {
		return input
	}
	flip := m.FlipBits
	if flip != 1 && flip != 2 && flip != 4 {
		flip = 1
	}
	out := clone(input)
	totalBits := len(input) * 8
	pos := rng.Intn(totalBits - flip + 1)
	for i := 0; i < flip; i++ {
		bitPos := pos + i
		byteIdx, bitIdx := bitPos/8, bitPos%8
		out[byteIdx] ^= 1 << (7 - bitIdx)
	}
	return out
}

// ByteFlip XORs a run of 1, 2, or 4 consecutive bytes with 0xFF.
type ByteFlip struct{ FlipBytes int }

func (m ByteFlip) Name() string {
	switch m.FlipBytes {
	case 2:
		return "byteflip/2"
	case 4:
		return "byteflip/4"
	default:
		return "byteflip/1"
	}
}

func (m ByteFlip) Mutate(rng *rand.Rand, input []byte) []byte {
	flip := m.FlipBytes
	if flip != 1 && flip != 2 && flip != 4 {
		flip = 1
	}
	if len(input) < flip {
		return input
	}
	out := clone(input)
	pos := rng.Intn(len(input) - flip + 1)
	for i := 0; i < flip; i++ {
		out[pos+i] ^= 0xFF
	}
	return out
}

// Arithmetic adds a small random delta to a 1/2/4-byte little-endian
// integer window.
type Arithmetic struct {
	Width    int // 1, 2, or 4
	MaxDelta int
}

func (m Arithmetic) Name() string {
	switch m.Width {
	case 2:
		return "arith/16"
	case 4:
		return "arith/32"
	default:
		return "arith/8"
	}
}

func (m Arithmetic) Mutate(rng *rand.Rand, input []byte) []byte {
	width := m.Width
	if width != 1 && width != 2 && width != 4 {
		width = 1
	}
	if len(input) < width {
		return input
	}
	maxDelta := m.MaxDelta
	if maxDelta <= 0 {
		maxDelta = 35
	}
	out := clone(input)
	pos := rng.Intn(len(input) - width + 1)
	delta := rng.Intn(maxDelta*2+1) - maxDelta

	switch width {
	case 1:
		out[pos] = byte(int8(out[pos]) + int8(delta))
	case 2:
		v := int16(binary.LittleEndian.Uint16(out[pos:]))
		binary.LittleEndian.PutUint16(out[pos:], uint16(v+int16(delta)))
	case 4:
		v := int32(binary.LittleEndian.Uint32(out[pos:]))
		binary.LittleEndian.PutUint32(out[pos:], uint32(v+int32(delta)))
	}
	return out
}

// InterestingValue overwrites a 1/2/4-byte window with a boundary-probing
// constant (INT8_MIN, UINT16_MAX, and so on).
type InterestingValue struct{ Width int }

func (m InterestingValue) Name() string {
	switch m.Width {
	case 2:
		return "interest/16"
	case 4:
		return "interest/32"
	default:
		return "interest/8"
	}
}

func (m InterestingValue) Mutate(rng *rand.Rand, input []byte) []byte {
	width := m.Width
	if width != 1 && width != 2 && width != 4 {
		width = 1
	}
	if len(input) < width {
		return input
	}
	out := clone(input)
	pos := rng.Intn(len(input) - width + 1)

	switch width {
	case 1:
		out[pos] = byte(interesting8[rng.Intn(len(interesting8))])
	case 2:
		v := interesting16[rng.Intn(len(interesting16))]
		binary.LittleEndian.PutUint16(out[pos:], uint16(v))
	case 4:
		v := interesting32[rng.Intn(len(interesting32))]
		binary.LittleEndian.PutUint32(out[pos:], uint32(v))
	}
	return out
}

// Delete removes a random run of up to MaxDelete bytes.
type Delete struct{ MaxDelete int }

func (m Delete) Name() string { return "delete" }

func (m Delete) Mutate(rng *rand.Rand, input []byte) []byte {
	if len(input) == 0 {
		return input
	}
	maxDel := m.MaxDelete
	if maxDel <= 0 {
		maxDel = 16
	}
	if maxDel > len(input) {
		maxDel = len(input)
	}
	delCount := rng.Intn(maxDel) + 1
	if delCount > len(input) {
		delCount = len(input)
	}
	pos := rng.Intn(len(input) - delCount + 1)

	out := make([]byte, 0, len(input)-delCount)
	out = append(out, input[:pos]...)
	out = append(out, input[pos+delCount:]...)
	return out
}

// Insert splices a run of random bytes into the input at a random position.
type Insert struct{ MaxInsert int }

func (m Insert) Name() string { return "insert" }

func (m Insert) Mutate(rng *rand.Rand, input []byte) []byte {
	maxIns := m.MaxInsert
	if maxIns <= 0 {
		maxIns = 16
	}
	insCount := rng.Intn(maxIns) + 1

	chunk := make([]byte, insCount)
	rng.Read(chunk)

	pos := rng.Intn(len(input) + 1)
	out := make([]byte, 0, len(input)+insCount)
	out = append(out, input[:pos]...)
	out = append(out, chunk...)
	out = append(out, input[pos:]...)
	return out
}

// Splice replaces a suffix of input with a prefix of donor, the AFL
// "splice" stage that recombines two corpus entries.
type Splice struct{ Donor []byte }

func (m Splice) Name() string { return "splice" }

func (m Splice) Mutate(rng *rand.Rand, input []byte) []byte {
	if len(input) < 2 || len(m.Donor) < 2 {
		return input
	}
	splitA := 1 + rng.Intn(len(input)-1)
	splitB := 1 + rng.Intn(len(m.Donor)-1)

	out := make([]byte, 0, splitA+len(m.Donor)-splitB)
	out = append(out, input[:splitA]...)
	out = append(out, m.Donor[splitB:]...)
	return out
}

// Havoc chains a random number of the other mutators back to back: the AFL
// "havoc" stage that does most of the work of finding new coverage once
// the deterministic stages above have been exhausted.
type Havoc struct {
	Stages  []Mutator
	MinRuns int
	MaxRuns int
}

// DefaultHavoc returns a Havoc stage over the deterministic mutators in
// this package, running between 2 and 8 of them per call.
func DefaultHavoc() Havoc {
	return Havoc{
		Stages: []Mutator{
			BitFlip{FlipBits: 1},
			ByteFlip{FlipBytes: 1},
			Arithmetic{Width: 1, MaxDelta: 35},
			Arithmetic{Width: 4, MaxDelta: 35},
			InterestingValue{Width: 1},
			InterestingValue{Width: 4},
			Delete{MaxDelete: 16},
			Insert{MaxInsert: 16},
		},
		MinRuns: 2,
		MaxRuns: 8,
	}
}

func (h Havoc) Name() string { return "havoc" }

func (h Havoc) Mutate(rng *rand.Rand, input []byte) []byte {
	if len(h.Stages) == 0 || len(input) == 0 {
		return input
	}
	minRuns, maxRuns := h.MinRuns, h.MaxRuns
	if minRuns <= 0 {
		minRuns = 1
	}
	if maxRuns < minRuns {
		maxRuns = minRuns
	}
	runs := minRuns + rng.Intn(maxRuns-minRuns+1)

	out := input
	for i := 0; i < runs; i++ {
		if len(out) == 0 {
			break
		}
		stage := h.Stages[rng.Intn(len(h.Stages))]
		out = stage.Mutate(rng, out)
	}
	return out
}
