package database

import (
	"fmt"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/config"
)

// NewOpenerFromConfig creates a StoreOpener based on the corpora config type.
func NewOpenerFromConfig(cfg config.CorporaConfig, sealer annotatrix.TokenSealer, clock annotatrix.Clock, idgen annotatrix.IDGenerator) (annotatrix.StoreOpener, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("dir required for sqlite corpora")
		}
		opener, err := NewDirOpener(cfg.Dir, sealer, clock, idgen)
		if err != nil {
			return nil, err
		}
		return opener, nil
	case "memory":
		return NewMemoryOpener(sealer, clock, idgen), nil
	default:
		return nil, fmt.Errorf("unknown corpora type: %s", cfg.Type)
	}
}
