// Package providers contains the completion router and the per-backend
// invoker packages it dispatches to.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"edgegate/config"
	"edgegate/internal/core"
	"edgegate/internal/memory"
	"edgegate/internal/observability"
	"edgegate/internal/routing"
)

// memoryContextLimit caps how many stored records are folded into the
// enrichment system message.
const memoryContextLimit = 5

// Router owns request validation, provider resolution, memory enrichment,
// dispatch and the single primary→backup substitution retry. It holds no
// per-request state and is safe for concurrent use once registration is
// complete.
type Router struct {
	invokers map[core.ProviderIdentity]core.Invoker
	resolver *routing.Resolver

	store     memory.Store
	memoryTTL time.Duration

	defaultModel     string
	backupModel      string
	structuredModels []string

	logger *slog.Logger
}

// NewRouter builds a router from the loaded configuration. store may be
// nil, which disables conversation memory entirely.
func NewRouter(cfg *config.Config, resolver *routing.Resolver, store memory.Store) *Router {
	return &Router{
		invokers:         make(map[core.ProviderIdentity]core.Invoker),
		resolver:         resolver,
		store:            store,
		memoryTTL:        cfg.Memory.TTL,
		defaultModel:     cfg.WorkersAI.DefaultModel,
		backupModel:      cfg.WorkersAI.BackupModel,
		structuredModels: cfg.OpenAI.StructuredModels,
		logger:           slog.Default(),
	}
}

// Register binds an invoker to a provider identity. Not safe to call
// concurrently with request handling.
func (r *Router) Register(id core.ProviderIdentity, invoker core.Invoker) {
	r.invokers[id] = invoker
}

// validate applies the checks shared by every handler variant.
func (r *Router) validate(req *core.ChatRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return core.NewInvalidRequestError("messages must not be empty", nil)
	}
	return nil
}

// ValidateStructured applies the structured-variant checks: a JSON schema
// must be present, and OpenAI models must be on the structured allow-list.
// The allow-list is enumerated in the rejection so callers can self-serve.
func (r *Router) ValidateStructured(req *core.ChatRequest) error {
	if err := r.validate(req); err != nil {
		return err
	}

	spec := req.StructuredSpec()
	if spec == nil || len(spec.Schema) == 0 {
		return core.NewInvalidRequestError(
			"structured output requires response_format.type \"json_schema\" with a non-empty json_schema.schema", nil)
	}

	provider := r.resolver.ResolveProvider(req.Model)
	if provider == core.ProviderOpenAI {
		model := strings.ToLower(strings.TrimSpace(req.Model))
		for _, allowed := range r.structuredModels {
			if strings.ToLower(allowed) == model {
				return nil
			}
		}
		return core.NewInvalidRequestError(
			fmt.Sprintf("model %q does not support structured output; supported models: %s",
				req.Model, strings.Join(r.structuredModels, ", ")), nil)
	}
	return nil
}

// resolve runs the full pre-dispatch pipeline: provider resolution, alias
// mapping, model typing, memory enrichment and payload shaping.
func (r *Router) resolve(ctx context.Context, req *core.ChatRequest) (core.ProviderIdentity, *core.ResolvedRequest) {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = r.defaultModel
	}

	provider := r.resolver.ResolveProvider(req.Model)
	model := r.resolver.MapModelName(req.Model, provider)
	modelType := routing.ResolveModelType(model, provider)

	messages := r.enrich(ctx, req)

	return provider, &core.ResolvedRequest{
		Request: req,
		Model:   model,
		Type:    modelType,
		Payload: routing.ConvertMessages(messages, provider, modelType),
	}
}

func (r *Router) invoker(provider core.ProviderIdentity) (core.Invoker, error) {
	invoker, ok := r.invokers[provider]
	if !ok {
		return nil, core.NewAPIError(string(provider), "no invoker registered for provider", "", nil)
	}
	return invoker, nil
}

// retryModel returns the backup model for a failed edge-platform call, or
// "" when no substitution retry applies.
func (r *Router) retryModel(provider core.ProviderIdentity, resolved *core.ResolvedRequest) string {
	if provider != core.ProviderWorkersAI || r.backupModel == "" || resolved.Model == r.backupModel {
		return ""
	}
	return r.backupModel
}

// withModel rebuilds the resolved request for a substitute model, re-running
// model typing and payload shaping since the backup may take a different
// input shape.
func (r *Router) withModel(resolved *core.ResolvedRequest, provider core.ProviderIdentity, model string, messages []core.Message) *core.ResolvedRequest {
	modelType := routing.ResolveModelType(model, provider)
	return &core.ResolvedRequest{
		Request: resolved.Request,
		Model:   model,
		Type:    modelType,
		Payload: routing.ConvertMessages(messages, provider, modelType),
	}
}

// ChatCompletion executes the standard non-streaming pipeline.
func (r *Router) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	provider, resolved := r.resolve(ctx, req)
	invoker, err := r.invoker(provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := invoker.ChatCompletion(ctx, resolved)
	if err != nil {
		if backup := r.retryModel(provider, resolved); backup != "" {
			r.logger.Warn("primary model failed, retrying with backup",
				"provider", provider, "model", resolved.Model, "backup", backup, "error", err)
			retry := r.withModel(resolved, provider, backup, r.enrich(ctx, req))
			resp, err = invoker.ChatCompletion(ctx, retry)
		}
	}
	observability.ObserveRequest(string(provider), start, err)
	if err != nil {
		return nil, tagRequestID(ctx, err)
	}

	r.persist(ctx, req, resp.Text())
	return resp, nil
}

// tagRequestID stamps the request-scoped id onto gateway errors that do
// not carry one yet, so it reaches the wire error body.
func tagRequestID(ctx context.Context, err error) error {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) && gwErr.RequestID == "" {
		gwErr.RequestID = core.GetRequestID(ctx)
	}
	return err
}

// StreamChatCompletion executes the streaming pipeline. The retry applies
// only when the upstream call fails before any stream bytes exist; once a
// stream is open, failures surface in-band. Streaming responses are never
// persisted to memory.
func (r *Router) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	provider, resolved := r.resolve(ctx, req)
	invoker, err := r.invoker(provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stream, err := invoker.StreamChatCompletion(ctx, resolved)
	if err != nil {
		if backup := r.retryModel(provider, resolved); backup != "" {
			r.logger.Warn("primary model failed, retrying with backup",
				"provider", provider, "model", resolved.Model, "backup", backup, "error", err)
			retry := r.withModel(resolved, provider, backup, r.enrich(ctx, req))
			stream, err = invoker.StreamChatCompletion(ctx, retry)
		}
	}
	observability.ObserveRequest(string(provider), start, err)
	if err != nil {
		return nil, tagRequestID(ctx, err)
	}
	return stream, nil
}

// enrich returns the request messages, with a leading system message
// carrying stored conversation context when the request names a memory
// keyword and the store has matching records. Lookup failures degrade to
// the unenriched messages.
func (r *Router) enrich(ctx context.Context, req *core.ChatRequest) []core.Message {
	if r.store == nil || req.MemoryKeyword == "" {
		return req.Messages
	}

	keys, err := r.store.List(ctx, memory.KeywordPrefix(req.MemoryKeyword))
	observability.ObserveMemory("list", err)
	if err != nil {
		r.logger.Warn("memory lookup failed", "keyword", req.MemoryKeyword, "error", err)
		return req.Messages
	}
	if len(keys) == 0 {
		return req.Messages
	}

	records := make([]memory.Record, 0, len(keys))
	for _, key := range keys {
		rec, err := r.store.Get(ctx, key)
		if err != nil {
			r.logger.Warn("memory read failed", "key", key, "error", err)
			continue
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	if len(records) == 0 {
		return req.Messages
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	if len(records) > memoryContextLimit {
		records = records[len(records)-memoryContextLimit:]
	}

	contexts := make([]string, 0, len(records))
	for _, rec := range records {
		contexts = append(contexts, rec.Context)
	}

	enriched := make([]core.Message, 0, len(req.Messages)+1)
	enriched = append(enriched, core.Message{
		Role:    "system",
		Content: "Relevant context from earlier conversations:\n" + strings.Join(contexts, "\n"),
	})
	enriched = append(enriched, req.Messages...)
	return enriched
}

// persist writes one conversation turn to the memory store. Persistence is
// best-effort: failures are logged and never fail the request.
func (r *Router) persist(ctx context.Context, req *core.ChatRequest, responseText string) {
	if r.store == nil || req.MemoryKeyword == "" || responseText == "" {
		return
	}

	lastUser := lastUserMessage(req.Messages)
	if lastUser == "" {
		return
	}

	rec := &memory.Record{
		Context:   fmt.Sprintf("user: %s\nassistant: %s", lastUser, responseText),
		Timestamp: time.Now(),
		Keyword:   req.MemoryKeyword,
	}
	err := r.store.Put(ctx, memory.Key(req.MemoryKeyword, lastUser), rec, r.memoryTTL)
	observability.ObserveMemory("put", err)
	if err != nil {
		r.logger.Warn("memory persistence failed", "keyword", req.MemoryKeyword, "error", err)
	}
}

func lastUserMessage(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// ListModels fans out to every registered provider and merges the results,
// de-duplicated by id and sorted. Individual provider failures degrade to
// a partial list; an error is returned only when every provider failed.
func (r *Router) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	type result struct {
		provider core.ProviderIdentity
		models   []core.Model
		err      error
	}

	results := make(chan result, len(r.invokers))
	var wg sync.WaitGroup
	for id, invoker := range r.invokers {
		wg.Add(1)
		go func(id core.ProviderIdentity, invoker core.Invoker) {
			defer wg.Done()
			models, err := invoker.ListModels(ctx)
			results <- result{provider: id, models: models, err: err}
		}(id, invoker)
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	var models []core.Model
	failures := 0
	var lastErr error
	for res := range results {
		if res.err != nil {
			failures++
			lastErr = res.err
			r.logger.Warn("model listing failed", "provider", res.provider, "error", res.err)
			continue
		}
		for _, m := range res.models {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			models = append(models, m)
		}
	}

	if len(r.invokers) > 0 && failures == len(r.invokers) {
		return nil, lastErr
	}

	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	if models == nil {
		models = []core.Model{}
	}
	return &core.ModelsResponse{Object: "list", Data: models}, nil
}
