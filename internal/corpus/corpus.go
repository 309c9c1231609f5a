// Package corpus loads and persists the seed inputs seedsched schedules
// over. It owns on-disk storage (queue/ and crashes/ directories) but holds
// no scheduling opinion of its own — that lives entirely in seedsched.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fluxcore/fluxcore/internal/crashsim"
	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// Corpus manages seed inputs and crash-inducing inputs on disk.
type Corpus struct {
	mu       sync.RWMutex
	dir      string
	byHash   map[string]seedsched.SeedID
	nextID   seedsched.SeedID
	crashes  []CrashEntry
	crashIdx map[string]bool
	hasher   *crashsim.Hasher
}

// CrashEntry is a crash-inducing input preserved for triage.
type CrashEntry struct {
	Hash         string             `json:"hash"`
	Output       []byte             `json:"-"`
	ExitCode     int                `json:"exit_code"`
	DiscoveredAt time.Time          `json:"discovered_at"`
	Signature    crashsim.Signature `json:"-"`
}

// New creates a Corpus rooted at dir, creating the queue/ and crashes/
// subdirectories if they don't exist. An empty dir falls back to a temp
// directory, matching single-run throwaway usage.
func New(dir string) (*Corpus, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "fluxcore_corpus")
	}
	for _, sub := range []string{"queue", "crashes"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &Corpus{
		dir:      dir,
		byHash:   make(map[string]seedsched.SeedID),
		crashIdx: make(map[string]bool),
		hasher:   crashsim.NewHasher(),
	}, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AddSeed registers payload as a new seed unless an identical payload is
// already present, and persists it under queue/. Returns the seed and
// whether it was newly added.
func (c *Corpus) AddSeed(payload []byte, bucket, family string) (seedsched.Seed, bool) {
	hash := hashBytes(payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, exists := c.byHash[hash]; exists {
		return seedsched.Seed{ID: id, Payload: payload, Bucket: bucket, Family: family}, false
	}

	c.nextID++
	seed := seedsched.Seed{
		ID:      c.nextID,
		Payload: payload,
		Bucket:  bucket,
		Family:  family,
		Metadata: map[string]string{
			"hash": hash,
		},
	}
	c.byHash[hash] = seed.ID

	if err := c.saveSeed(hash, seed); err != nil {
		// Disk persistence is best-effort; the seed still lives in memory
		// for this run even if the write failed.
		seed.Metadata["save_error"] = err.Error()
	}

	return seed, true
}

func (c *Corpus) saveSeed(hash string, seed seedsched.Seed) error {
	inputPath := filepath.Join(c.dir, "queue", hash)
	if err := os.WriteFile(inputPath, seed.Payload, 0644); err != nil {
		return err
	}
	meta, err := json.Marshal(seedMeta{
		Hash:         hash,
		Bucket:       seed.Bucket,
		Family:       seed.Family,
		DiscoveredAt: time.Now(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, "queue", hash+".json"), meta, 0644)
}

type seedMeta struct {
	Hash         string    `json:"hash"`
	Bucket       string    `json:"bucket"`
	Family       string    `json:"family"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// AddCrash records a unique crash-inducing input. Returns false if the same
// payload already caused a recorded crash.
func (c *Corpus) AddCrash(payload []byte, output []byte, exitCode int) bool {
	hash := hashBytes(payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.crashIdx[hash] {
		return false
	}
	c.crashIdx[hash] = true

	entry := CrashEntry{
		Hash:         hash,
		Output:       output,
		ExitCode:     exitCode,
		DiscoveredAt: time.Now(),
		Signature:    c.hasher.Compute(string(output)),
	}
	c.crashes = append(c.crashes, entry)

	inputPath := filepath.Join(c.dir, "crashes", hash)
	os.WriteFile(inputPath, payload, 0644)
	if len(output) > 0 {
		os.WriteFile(filepath.Join(c.dir, "crashes", hash+".output"), output, 0644)
	}
	if meta, err := json.Marshal(entry); err == nil {
		os.WriteFile(filepath.Join(c.dir, "crashes", hash+".json"), meta, 0644)
	}

	return true
}

// Crashes returns a snapshot of all recorded crashes.
func (c *Corpus) Crashes() []CrashEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CrashEntry, len(c.crashes))
	copy(out, c.crashes)
	return out
}

// Size returns the number of distinct seeds registered so far.
func (c *Corpus) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byHash)
}

// Clusters groups recorded crashes by the similarity of their output, so
// triage sees one bucket per likely root cause instead of one entry per
// byte-distinct input. threshold is the maximum Hamming distance between two
// crashes' signatures for them to land in the same bucket; 8 is a reasonable
// default for stack-trace text.
func (c *Corpus) Clusters(threshold int) [][]CrashEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var clusters [][]CrashEntry
	for _, entry := range c.crashes {
		placed := false
		for i, cluster := range clusters {
			if cluster[0].Signature.IsSimilar(entry.Signature, threshold) {
				clusters[i] = append(clusters[i], entry)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []CrashEntry{entry})
		}
	}
	return clusters
}

// CrashCount returns the number of distinct crashes registered so far.
func (c *Corpus) CrashCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.crashes)
}

// LoadDir reads every file under dir/queue (skipping .json metadata
// sidecars) and returns them as seeds with the given bucket/family, ready to
// be fed to a seedsched.Scheduler via Add. It does not mutate the receiver's
// own in-memory index — callers combine LoadDir with AddSeed to do that.
func LoadDir(dir, bucket, family string) ([]seedsched.Seed, error) {
	queueDir := filepath.Join(dir, "queue")
	files, err := os.ReadDir(queueDir)
	if err != nil {
		return nil, fmt.Errorf("read queue dir: %w", err)
	}

	var seeds []seedsched.Seed
	var id seedsched.SeedID
	for _, file := range files {
		if filepath.Ext(file.Name()) == ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(queueDir, file.Name()))
		if err != nil {
			continue
		}
		id++
		seeds = append(seeds, seedsched.Seed{
			ID:      id,
			Payload: data,
			Bucket:  bucket,
			Family:  family,
			Metadata: map[string]string{
				"hash": file.Name(),
			},
		})
	}
	return seeds, nil
}

// SampleByRatio returns a random subset of seeds sized to ratio of the full
// batch (ratio=0.25 keeps roughly a quarter), for corpora too large to load
// in full. ratio must be positive; when ratio times the batch size, rounded,
// exceeds the batch, the request is reported via seedsched.OverflowError
// rather than silently clamped.
func SampleByRatio(seeds []seedsched.Seed, ratio float64, rng *rand.Rand) ([]seedsched.Seed, error) {
	if ratio <= 0 {
		return nil, &seedsched.ConfigurationError{Reason: "sample ratio must be positive"}
	}

	want := int(math.Round(ratio * float64(len(seeds))))
	if want > len(seeds) {
		return nil, &seedsched.OverflowError{Requested: want, Available: len(seeds)}
	}
	if want == len(seeds) {
		out := make([]seedsched.Seed, len(seeds))
		copy(out, seeds)
		return out, nil
	}

	picked := rng.Perm(len(seeds))[:want]
	out := make([]seedsched.Seed, want)
	for i, j := range picked {
		out[i] = seeds[j]
	}
	return out, nil
}
