package encryption

import (
	"bytes"
	"fmt"

	"annotatrix/internal/annotatrix"
)

// plainHeader is prepended by PlainSealer so sealed values are recognisable
// and a store written with another sealer fails loudly instead of yielding
// garbage tokens.
var plainHeader = []byte("ANXTOK\x00\x00")

// PlainSealer stores tokens unencrypted behind a fixed header. It is used
// in tests and by deployments that opt out of token encryption.
type PlainSealer struct{}

var _ annotatrix.TokenSealer = PlainSealer{}

// NewPlainSealer creates a new PlainSealer.
func NewPlainSealer() PlainSealer {
	return PlainSealer{}
}

func (PlainSealer) Seal(token string) ([]byte, error) {
	out := make([]byte, 0, len(plainHeader)+len(token))
	out = append(out, plainHeader...)
	return append(out, token...), nil
}

func (PlainSealer) Open(sealed []byte) (string, error) {
	if !bytes.HasPrefix(sealed, plainHeader) {
		return "", fmt.Errorf("invalid plain token header")
	}
	return string(sealed[len(plainHeader):]), nil
}
