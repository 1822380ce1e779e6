package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator hands out predictable identifiers so run ids and session
// tokens can be asserted literally instead of pattern-matched.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

// NewIDGenerator returns a generator producing "{prefix}-1", "{prefix}-2"
// and so on. An empty prefix defaults to "run".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the following identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc adapts the generator to the id-func dependency the services
// accept. A nil generator yields empty identifiers.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// SetPrefix changes the prefix for subsequently issued identifiers.
func (g *IDGenerator) SetPrefix(prefix string) {
	g.mu.Lock()
	g.prefix = prefix
	g.mu.Unlock()
}

// SetCounter rewinds or fast-forwards the sequence.
func (g *IDGenerator) SetCounter(counter uint64) {
	g.mu.Lock()
	g.counter = counter
	g.mu.Unlock()
}
