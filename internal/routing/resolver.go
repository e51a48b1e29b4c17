// Package routing decides which backend owns a model string and reshapes
// message lists into the form each backend's model family expects.
package routing

import (
	"strings"

	"edgegate/config"
	"edgegate/internal/core"
)

// genericOpenAIAliases are the two canonical generic model names. They
// route to OpenAI only when an API key is configured; otherwise they fall
// through to the Workers AI default via the alias table.
var genericOpenAIAliases = map[string]bool{
	"gpt-4":         true,
	"gpt-3.5-turbo": true,
}

// Resolver maps model strings to providers and rewrites aliases into
// concrete model ids. All lookup tables are immutable after construction,
// so a Resolver is safe for concurrent use.
type Resolver struct {
	openAIConfigured bool
	workersAliases   map[string]string
	geminiAliases    map[string]string
}

// NewResolver builds a resolver from the loaded configuration.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{
		openAIConfigured: cfg.OpenAI.APIKey != "",
		workersAliases:   cfg.WorkersAI.Aliases,
		geminiAliases:    cfg.Gemini.Aliases,
	}
}

// ResolveProvider decides which backend owns the model string. The rules
// are ordered, first match wins, and matching is case-insensitive. The
// function is pure and total: it never fails, and the same input always
// yields the same result.
func (r *Resolver) ResolveProvider(model string) core.ProviderIdentity {
	m := strings.ToLower(strings.TrimSpace(model))

	switch {
	case strings.HasPrefix(m, "@cf/"):
		return core.ProviderWorkersAI
	case strings.Contains(m, "gpt") && !genericOpenAIAliases[m]:
		return core.ProviderOpenAI
	case strings.Contains(m, "gemini") || strings.Contains(m, "bard"):
		return core.ProviderGemini
	case r.openAIConfigured && genericOpenAIAliases[m]:
		return core.ProviderOpenAI
	default:
		return core.ProviderWorkersAI
	}
}

// MapModelName rewrites a generic alias into the provider's concrete model
// id. Unmatched strings pass through unchanged.
func (r *Resolver) MapModelName(model string, provider core.ProviderIdentity) string {
	m := strings.ToLower(strings.TrimSpace(model))

	var aliases map[string]string
	switch provider {
	case core.ProviderWorkersAI:
		aliases = r.workersAliases
	case core.ProviderGemini:
		aliases = r.geminiAliases
	default:
		return model
	}

	if concrete, ok := aliases[m]; ok {
		return concrete
	}
	return model
}

// ResolveModelType classifies a Workers AI model's input contract. Checks
// are ordered substring matches; the generation-4 family and
// OpenAI-compatible models take chat messages, older llama models take
// the instruction template, everything else takes a plain prompt.
// For the other providers the answer is always chat.
func ResolveModelType(model string, provider core.ProviderIdentity) core.ModelType {
	if provider != core.ProviderWorkersAI {
		return core.ModelTypeChat
	}

	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "llama-4"):
		return core.ModelTypeChat
	case strings.Contains(m, "llama"):
		return core.ModelTypeTemplated
	case strings.Contains(m, "gpt") || strings.Contains(m, "oss"):
		return core.ModelTypeChat
	default:
		return core.ModelTypeGeneric
	}
}
