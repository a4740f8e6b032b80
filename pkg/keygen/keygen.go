package keygen

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Strategy selects how document primary keys are generated.
//
// The set is closed and chosen explicitly by configuration; key kinds are
// never inferred from the runtime type of a value.
type Strategy int

const (
	// UUID generates a random version 4 UUID string.
	UUID Strategy = iota
	// RandomInt generates a positive random integer rendered in decimal.
	RandomInt
	// ObjectID generates a MongoDB object id in hex form.
	ObjectID
	// External means the caller supplies the key; Generate refuses to run.
	External
)

// String returns the configuration name of the strategy
func (s Strategy) String() string {
	switch s {
	case UUID:
		return "uuid"
	case RandomInt:
		return "randomint"
	case ObjectID:
		return "objectid"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a configuration name into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "uuid":
		return UUID, nil
	case "randomint":
		return RandomInt, nil
	case "objectid":
		return ObjectID, nil
	case "external":
		return External, nil
	default:
		return 0, fmt.Errorf("unknown key strategy: %q", name)
	}
}

// Generator produces primary keys for a single strategy.
//
// The random source is injected so key generation is deterministic under
// test; there is no package-level RNG state.
type Generator struct {
	strategy Strategy
	rng      *rand.Rand
}

// NewGenerator creates a generator for the given strategy and random source
func NewGenerator(strategy Strategy, rng *rand.Rand) *Generator {
	return &Generator{
		strategy: strategy,
		rng:      rng,
	}
}

// Strategy returns the generator's strategy
func (g *Generator) Strategy() Strategy {
	return g.strategy
}

// Generate produces a new primary key.
//
// External generators never generate; callers assign keys through the
// document's SetID override instead.
func (g *Generator) Generate() (string, error) {
	switch g.strategy {
	case UUID:
		// rand.Rand implements io.Read, so the injected source also
		// drives UUID entropy.
		id, err := uuid.NewRandomFromReader(g.rng)
		if err != nil {
			return "", fmt.Errorf("failed to generate UUID key: %w", err)
		}
		return id.String(), nil
	case RandomInt:
		n := g.rng.Int63n(1<<62-1) + 1
		return strconv.FormatInt(n, 10), nil
	case ObjectID:
		return primitive.NewObjectID().Hex(), nil
	case External:
		return "", fmt.Errorf("external key strategy does not generate keys")
	default:
		return "", fmt.Errorf("unknown key strategy: %d", g.strategy)
	}
}
