package downsample

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Opts configures an Engine.
type Opts struct {
	// Probability is the chance of keeping a unit, in [0,1].
	Probability float64
	// Seed seeds the random generator, as a decimal uint64.  If empty, the
	// generator is seeded from system entropy and runs are not
	// reproducible.
	Seed string
	// Hash selects hash mode: units are selected by a seeded hash of their
	// name instead of a random draw.
	Hash bool
	// HashFunction names the digest used in hash mode ("murmur3",
	// "highwayhash", "farm" or "seahash").  Empty means murmur3.
	HashFunction string
	// HashSeed, if set, is the decimal uint32 seed for hash mode.  By
	// default the seed is the first value drawn from the random generator.
	HashSeed string
}

// DefaultOpts keeps everything in random mode.
var DefaultOpts = Opts{Probability: 1.0}

// Engine makes the keep/drop decision for each unit.  The threshold, mode
// and hash seed are fixed at construction.  An Engine is not thread-safe.
type Engine struct {
	p         float64
	threshold uint32
	hash      bool
	hashFn    HashFunction
	hashSeed  uint32
	rng       *rand.Rand
}

// NewEngine validates opts and creates an Engine.  All errors are of kind
// errors.Invalid.
func NewEngine(opts Opts) (*Engine, error) {
	threshold, err := Threshold(opts.Probability)
	if err != nil {
		return nil, err
	}
	seed, err := parseSeed(opts.Seed)
	if err != nil {
		return nil, err
	}
	hashFn, err := ParseHashFunction(opts.HashFunction)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		p:         opts.Probability,
		threshold: threshold,
		hash:      opts.Hash,
		hashFn:    hashFn,
		rng:       rand.New(rand.NewSource(int64(seed))),
	}
	if opts.Hash {
		if opts.HashSeed != "" {
			if e.hashSeed, err = parseHashSeed(opts.HashSeed); err != nil {
				return nil, err
			}
		} else {
			e.hashSeed = e.rng.Uint32()
		}
		log.Printf("downsample: hash mode, p=%v threshold=%d function=%v seed=%d", e.p, e.threshold, e.hashFn, e.hashSeed)
	} else {
		log.Printf("downsample: random mode, p=%v threshold=%d", e.p, e.threshold)
	}
	return e, nil
}

// Validate checks opts without creating an Engine or logging.  It reports
// the same errors as NewEngine, so callers can reject a bad configuration
// before opening any output.
func (o Opts) Validate() error {
	if _, err := Threshold(o.Probability); err != nil {
		return err
	}
	if o.Seed != "" {
		if _, err := parseSeed(o.Seed); err != nil {
			return err
		}
	}
	if _, err := ParseHashFunction(o.HashFunction); err != nil {
		return err
	}
	if o.Hash && o.HashSeed != "" {
		if _, err := parseHashSeed(o.HashSeed); err != nil {
			return err
		}
	}
	return nil
}

func parseHashSeed(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.E(errors.Invalid, err, fmt.Sprintf("cannot parse hash seed %q", s))
	}
	return uint32(v), nil
}

func parseSeed(s string) (uint64, error) {
	if s == "" {
		return entropySeed(), nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.E(errors.Invalid, err, fmt.Sprintf("cannot parse seed %q", s))
	}
	return v, nil
}

func entropySeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		log.Debug.Printf("downsample: crypto/rand unavailable (%v), seeding from clock", err)
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Keep reports whether u survives.  Exactly one value is drawn per call,
// however many blocks u carries.
func (e *Engine) Keep(u *Unit) bool {
	return e.draw(u) <= e.threshold
}

func (e *Engine) draw(u *Unit) uint32 {
	if e.hash {
		return Hash(e.hashFn, e.hashSeed, u.Name)
	}
	return e.rng.Uint32()
}

// Threshold returns the cutoff derived from the keep-probability.
func (e *Engine) Threshold() uint32 { return e.threshold }

// HashMode reports whether e selects by name hash.
func (e *Engine) HashMode() bool { return e.hash }

// HashSeed returns the seed used in hash mode.  It is zero in random mode.
func (e *Engine) HashSeed() uint32 { return e.hashSeed }
