// Package adapter is the composition root the orchestration runtime calls.
// One MemoryAdapter per active memory kind owns a storage client, an
// embedding provider and a record mapper; all storage I/O goes through the
// shared bridge. Save and Search never surface errors to the runtime.
package adapter

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/crewmem/embedding"
	"github.com/BaSui01/crewmem/internal/bridge"
	"github.com/BaSui01/crewmem/mapper"
	"github.com/BaSui01/crewmem/types"
	"github.com/BaSui01/crewmem/vectorstore"
)

const instrumentationName = "github.com/BaSui01/crewmem/adapter"

// Recorder 记录保存/检索/嵌入指标。nil 表示不采集。
type Recorder interface {
	RecordSave(kind, backend string, duration time.Duration, err error)
	RecordSearch(kind, backend string, duration time.Duration, resultCount int, err error)
	RecordEmbedding(model string, duration time.Duration, err error)
}

// Options 装配一个记忆适配器所需的全部依赖。
type Options struct {
	Kind     types.MemoryKind
	CrewID   string
	Client   vectorstore.Client
	Provider embedding.Provider
	Mapper   *mapper.Mapper
	Bridge   *bridge.Bridge

	// Policy decides per model whether the primary provider is used
	// directly or requests route to Fallback. Both optional.
	Policy   *embedding.ModelCompatibilityPolicy
	Fallback embedding.Provider

	// Retriever expands entity search results over the relationship
	// graph. Entity kind only, optional.
	Retriever *RelationshipRetriever

	Metrics     Recorder
	BackendName string
	Logger      *zap.Logger
}

// MemoryAdapter 单一记忆类型的运行时入口。
type MemoryAdapter struct {
	kind        types.MemoryKind
	crewID      string
	client      vectorstore.Client
	provider    embedding.Provider
	fallback    embedding.Provider
	policy      *embedding.ModelCompatibilityPolicy
	mapper      *mapper.Mapper
	bridge      *bridge.Bridge
	retriever   *RelationshipRetriever
	metrics     Recorder
	backendName string
	tracer      trace.Tracer
	logger      *zap.Logger

	mu           sync.RWMutex
	defaultAgent *types.AgentRef
}

// NewMemoryAdapter 创建记忆适配器。Client、Provider、Mapper、Bridge 必填。
func NewMemoryAdapter(opts Options) (*MemoryAdapter, error) {
	if opts.Client == nil {
		return nil, errRequired("client")
	}
	if opts.Provider == nil {
		return nil, errRequired("provider")
	}
	if opts.Mapper == nil {
		return nil, errRequired("mapper")
	}
	if opts.Bridge == nil {
		return nil, errRequired("bridge")
	}
	if !opts.Kind.Valid() {
		return nil, errRequired("valid memory kind")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backendName := opts.BackendName
	if backendName == "" {
		backendName = "default"
	}
	return &MemoryAdapter{
		kind:        opts.Kind,
		crewID:      opts.CrewID,
		client:      opts.Client,
		provider:    opts.Provider,
		fallback:    opts.Fallback,
		policy:      opts.Policy,
		mapper:      opts.Mapper,
		bridge:      opts.Bridge,
		retriever:   opts.Retriever,
		metrics:     opts.Metrics,
		backendName: backendName,
		tracer:      otel.Tracer(instrumentationName),
		logger: logger.With(
			zap.String("component", "memory_adapter"),
			zap.String("kind", string(opts.Kind))),
	}, nil
}

// SetAgentContext 注入默认 agent。运行时有时不带 agent 调用保存,
// 此时回退到这里注入的值。
func (a *MemoryAdapter) SetAgentContext(ref types.AgentRef) {
	a.mu.Lock()
	a.defaultAgent = &ref
	a.mu.Unlock()
}

// Save 保存一条记忆。映射、嵌入、持久化任一步失败都只记日志,
// 绝不向运行时抛错。持久化经桥异步执行。
func (a *MemoryAdapter) Save(ctx context.Context, req types.SaveRequest) {
	ctx, span := a.tracer.Start(ctx, "memory.save",
		trace.WithAttributes(
			attribute.String("memory.kind", string(a.kind)),
			attribute.String("memory.crew_id", a.crewID),
			attribute.String("memory.backend", a.backendName)))
	defer span.End()

	req = a.injectDefaultAgent(req)

	rec := a.mapper.ToRecord(req)
	if rec == nil {
		a.logger.Debug("save request yielded no record, skipping")
		return
	}

	start := time.Now()
	vec, model, err := a.embed(ctx, rec.Text)
	if err != nil {
		a.logger.Warn("embedding failed, save skipped",
			zap.String("record_id", rec.ID), zap.Error(err))
		a.recordSave(start, err)
		return
	}
	rec.Embedding = vec
	rec.EmbeddingModel = model

	a.bridge.RunAsync(ctx, func(ctx context.Context) error {
		err := a.client.Save(ctx, rec)
		a.recordSave(start, err)
		if err != nil {
			a.logger.Warn("save dropped",
				zap.String("record_id", rec.ID), zap.Error(err))
		}
		return err
	})
}

// Search 按相似度检索。任何失败都返回空列表,绝不抛错。
// 空查询对实体记忆表示"列出全部",由存储层的探针向量实现。
// 每条结果保证携带非空 Context。
func (a *MemoryAdapter) Search(ctx context.Context, query string, topK int, filters map[string]string) []types.SearchResult {
	ctx, span := a.tracer.Start(ctx, "memory.search",
		trace.WithAttributes(
			attribute.String("memory.kind", string(a.kind)),
			attribute.String("memory.crew_id", a.crewID),
			attribute.Int("memory.top_k", topK)))
	defer span.End()

	start := time.Now()
	query = strings.TrimSpace(query)

	var queryVec []float32
	if query != "" {
		vec, _, err := a.embed(ctx, query)
		if err != nil {
			a.logger.Warn("query embedding failed, returning empty results",
				zap.Error(err))
			a.recordSearch(start, 0, err)
			return []types.SearchResult{}
		}
		queryVec = vec
	}

	q := vectorstore.Query{
		Embedding: queryVec,
		Kind:      a.kind,
		CrewID:    a.crewID,
		K:         topK,
		Filters:   filters,
	}

	var results []types.SearchResult
	err := a.bridge.Run(ctx, func(ctx context.Context) error {
		var err error
		results, err = a.client.Search(ctx, q)
		return err
	})
	if err != nil {
		a.logger.Warn("search failed, returning empty results", zap.Error(err))
		a.recordSearch(start, 0, err)
		return []types.SearchResult{}
	}

	results = a.normalize(results)

	if a.kind == types.MemoryEntity && a.retriever != nil {
		results = a.retriever.Expand(ctx, a.client, results)
	}

	a.recordSearch(start, len(results), nil)
	return results
}

// Load 按任务描述取回长期记忆,委托给 Search。
func (a *MemoryAdapter) Load(ctx context.Context, taskDescription string, latestN int) []types.LoadedItem {
	filters := map[string]string{}
	if t := strings.TrimSpace(taskDescription); t != "" {
		filters["task"] = t
	}
	results := a.Search(ctx, taskDescription, latestN, filters)

	items := make([]types.LoadedItem, 0, len(results))
	for _, r := range results {
		items = append(items, types.LoadedItem{
			Content:  r.Context,
			Metadata: r.Record.Metadata,
			Score:    r.Score,
		})
	}
	return items
}

// GetEntities 列出已知实体名,委托给空查询 Search 并去重。
func (a *MemoryAdapter) GetEntities(ctx context.Context, limit int) []string {
	results := a.Search(ctx, "", limit, nil)

	seen := make(map[string]struct{}, len(results))
	names := make([]string, 0, len(results))
	for _, r := range results {
		name := r.Record.EntityName
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// embed vectorizes text through the primary provider, or through the
// fallback when the compatibility policy routes the primary model away.
func (a *MemoryAdapter) embed(ctx context.Context, text string) ([]float32, string, error) {
	provider := a.provider
	if a.policy != nil && a.fallback != nil &&
		a.policy.Decide(a.provider.Model()) == embedding.RouteFallback {
		provider = a.fallback
	}
	start := time.Now()
	vec, err := provider.Embed(ctx, text)
	if a.metrics != nil {
		a.metrics.RecordEmbedding(provider.Model(), time.Since(start), err)
	}
	if err != nil {
		return nil, provider.Model(), err
	}
	return vec, provider.Model(), nil
}

// normalize 保证每条结果有非空 Context,并对写入/读取嵌入模型不一致
// 的记录告警。
func (a *MemoryAdapter) normalize(results []types.SearchResult) []types.SearchResult {
	activeModel := a.provider.Model()
	mismatchWarned := false

	for i := range results {
		r := &results[i]
		if r.Context == "" {
			r.Context = contextFrom(&r.Record)
		}
		if !mismatchWarned && r.Record.EmbeddingModel != "" && r.Record.EmbeddingModel != activeModel {
			a.logger.Warn("record embedded with a different model than the active provider",
				zap.String("record_model", r.Record.EmbeddingModel),
				zap.String("active_model", activeModel))
			mismatchWarned = true
		}
	}
	return results
}

// contextFrom derives a display context from whatever text the record
// carries. Records are heterogeneous; older writers used data/content
// metadata keys instead of the text field.
func contextFrom(rec *types.MemoryRecord) string {
	for _, candidate := range []string{
		rec.Text, rec.Content, rec.Description, rec.TaskDescription,
	} {
		if candidate != "" {
			return candidate
		}
	}
	for _, key := range []string{"context", "content", "data", "text", "description"} {
		if s, ok := rec.Metadata[key].(string); ok && s != "" {
			return s
		}
	}
	if rec.EntityName != "" {
		return rec.EntityName
	}
	return "memory record " + rec.ID
}

// injectDefaultAgent fills the agent slot of a save request when the caller
// supplied none and a default was set via SetAgentContext.
func (a *MemoryAdapter) injectDefaultAgent(req types.SaveRequest) types.SaveRequest {
	a.mu.RLock()
	def := a.defaultAgent
	a.mu.RUnlock()
	if def == nil {
		return req
	}

	switch r := req.(type) {
	case types.ShortTermSave:
		if r.Agent == nil && strings.TrimSpace(r.RawAgent) == "" {
			r.Agent = def
		}
		return r
	case *types.ShortTermSave:
		if r.Agent == nil && strings.TrimSpace(r.RawAgent) == "" {
			cp := *r
			cp.Agent = def
			return &cp
		}
		return r
	case types.EntitySave:
		if r.Agent == nil && strings.TrimSpace(r.RawAgent) == "" {
			r.Agent = def
		}
		return r
	case *types.EntitySave:
		if r.Agent == nil && strings.TrimSpace(r.RawAgent) == "" {
			cp := *r
			cp.Agent = def
			return &cp
		}
		return r
	case types.LongTermSave:
		if strings.TrimSpace(r.Item.Agent) == "" && def.Role != "" {
			r.Item.Agent = def.Role
		}
		return r
	case *types.LongTermSave:
		if strings.TrimSpace(r.Item.Agent) == "" && def.Role != "" {
			cp := *r
			cp.Item.Agent = def.Role
			return &cp
		}
		return r
	}
	return req
}

func (a *MemoryAdapter) recordSave(start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordSave(string(a.kind), a.backendName, time.Since(start), err)
}

func (a *MemoryAdapter) recordSearch(start time.Time, count int, err error) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordSearch(string(a.kind), a.backendName, time.Since(start), count, err)
}

type adapterError string

func (e adapterError) Error() string { return string(e) }

func errRequired(what string) error {
	return adapterError("memory adapter requires a " + what)
}
