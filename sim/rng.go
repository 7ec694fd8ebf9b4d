package sim

import (
	"hash/fnv"
	"math/rand"
	"strconv"

	"github.com/google/uuid"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical configuration
// MUST produce identical admit/release histories.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// runNamespace scopes run IDs derived from simulation keys.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/oss-sim/oss-sim/run"))

// RunID derives a stable identifier for runs with this key.
func (k SimulationKey) RunID() uuid.UUID {
	return uuid.NewSHA1(runNamespace, []byte(strconv.FormatInt(int64(k), 10)))
}

// === Subsystem Constants ===

const (
	// SubsystemLifetimes is the RNG subsystem for per-worker lifetime draws.
	// Uses master seed directly.
	SubsystemLifetimes = "lifetimes"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemLifetimes: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemLifetimes {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// DrawLifetime draws a worker lifetime: seconds uniform in [1, maxSeconds],
// nanoseconds uniform in [0, 1e9).
func DrawLifetime(rng *rand.Rand, maxSeconds int64) Lifetime {
	return Lifetime{
		Seconds:     rng.Int63n(maxSeconds) + 1,
		Nanoseconds: rng.Int63n(NanosPerSecond),
	}
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
