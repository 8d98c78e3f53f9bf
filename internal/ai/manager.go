package ai

import (
	"fmt"
	"time"

	"github.com/xxxsen/ragkb/internal/config"
)

// BuildGenerator wires the configured chat provider and its fallbacks into
// one IGenerator. Each entry gets its own per-call timeout; more than one
// entry becomes a failover group tried in order.
func BuildGenerator(cfg config.ProviderConfig, timeout time.Duration) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, 1+len(cfg.Fallbacks))
	for _, pc := range flatten(cfg) {
		provider, err := NewProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init chat provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, GeneratorEntry{
			Name:      entryName(pc),
			Generator: NewTimeoutGenerator(NewGenerator(provider, pc.Model), timeout),
		})
	}
	if len(entries) == 1 {
		return entries[0].Generator, nil
	}
	return NewGroupGenerator(entries), nil
}

// BuildEmbedder is the embedding counterpart of BuildGenerator. Dimension
// validation happens outside, on the assembled embedder, so a fallback that
// produces the wrong width is caught no matter which entry served.
func BuildEmbedder(cfg config.ProviderConfig, timeout time.Duration) (IEmbedder, error) {
	entries := make([]EmbedderEntry, 0, 1+len(cfg.Fallbacks))
	for _, pc := range flatten(cfg) {
		provider, err := NewProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, EmbedderEntry{
			Name:     entryName(pc),
			Embedder: NewTimeoutEmbedder(NewEmbedder(provider, pc.Model), timeout),
		})
	}
	if len(entries) == 1 {
		return entries[0].Embedder, nil
	}
	return NewGroupEmbedder(entries), nil
}

func flatten(cfg config.ProviderConfig) []config.ProviderConfig {
	return append([]config.ProviderConfig{cfg}, cfg.Fallbacks...)
}

func entryName(cfg config.ProviderConfig) string {
	return cfg.Provider + "/" + cfg.Model
}
