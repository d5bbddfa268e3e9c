package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out process-unique utterance IDs.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(connectionId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-utt-%d", connectionId, n)
}
