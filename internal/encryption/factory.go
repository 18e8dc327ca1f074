package encryption

import (
	"fmt"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/config"
)

// NewSealerFromConfig creates a TokenSealer based on the configuration type.
// An *AgeSealer must be unlocked before stored tokens can be opened.
func NewSealerFromConfig(cfg config.TokensConfig) (annotatrix.TokenSealer, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("public_key_path and private_key_path required for age tokens")
		}
		return NewAgeSealer(cfg), nil
	case "none":
		return NewPlainSealer(), nil
	default:
		return nil, fmt.Errorf("unknown tokens type: %q", cfg.Type)
	}
}
