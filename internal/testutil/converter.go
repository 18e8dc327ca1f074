package testutil

import (
	"context"
	"sync"

	"annotatrix/internal/annotatrix"
)

// FakeConverter records its inputs and answers with a canned result. When
// Save is set it runs after recording the input, standing in for the real
// converter writing the corpus through the save endpoint.
type FakeConverter struct {
	mu     sync.Mutex
	Output []byte
	Err    error
	Save   func(ctx context.Context, input []byte) error
	Inputs [][]byte
}

// NewFakeConverter returns a converter that prints treebankID.
func NewFakeConverter(treebankID string) *FakeConverter {
	return &FakeConverter{Output: []byte(treebankID + "\n")}
}

func (c *FakeConverter) Convert(ctx context.Context, input []byte) ([]byte, error) {
	c.mu.Lock()
	c.Inputs = append(c.Inputs, append([]byte(nil), input...))
	save := c.Save
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	if save != nil {
		if err := save(ctx, input); err != nil {
			return nil, err
		}
	}
	return c.Output, nil
}

// Calls returns how many times Convert ran.
func (c *FakeConverter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Inputs)
}

// Compile-time check
var _ annotatrix.Converter = (*FakeConverter)(nil)
