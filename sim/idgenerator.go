package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

var idGeneratorInstance IDGenerator

// GetIDGenerator returns the ID generator used in the current simulation
func GetIDGenerator() IDGenerator {
	if idGeneratorInstance == nil {
		idGeneratorInstance = &xidGenerator{}
	}

	return idGeneratorInstance
}

// UseSequentialIDGenerator configures the simulation to use a sequential ID
// generator. Sequential IDs keep traces reproducible across runs.
func UseSequentialIDGenerator() {
	idGeneratorInstance = &sequentialIDGenerator{}
}

type xidGenerator struct {
}

func (g xidGenerator) Generate() string {
	return xid.New().String()
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	id := atomic.AddUint64(&g.nextID, 1)
	return fmt.Sprintf("%d", id)
}
