// Package crewmem is the memory subsystem of an agent orchestration backend.
// It gives each crew of agents isolated, tenant-scoped recall across three
// memory kinds (short-term, long-term, entity) on top of a pluggable storage
// backend: a local embedded vector plus relational store, or a remote
// vector-search service.
//
// Usage:
//
//	cfg, _ := config.NewLoader().WithConfigPath("crewmem.yaml").Load()
//	sys, err := crewmem.New(cfg, crewmem.WithEmbedder(myEmbedder))
//	defer sys.Close()
//
//	mem, err := sys.BuildCrewMemory(ctx, crewmem.BuildInput{
//	    CrewName:   "research-crew",
//	    AgentRoles: []string{"researcher", "writer"},
//	    GroupID:    "tenant-42",
//	})
//	mem.ShortTerm().Save(ctx, types.ShortTermSave{Value: "finding"})
package crewmem

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/crewmem/adapter"
	"github.com/BaSui01/crewmem/backend"
	"github.com/BaSui01/crewmem/config"
	"github.com/BaSui01/crewmem/embedding"
	"github.com/BaSui01/crewmem/identity"
	"github.com/BaSui01/crewmem/internal/bridge"
	"github.com/BaSui01/crewmem/internal/metrics"
	"github.com/BaSui01/crewmem/types"
	"github.com/BaSui01/crewmem/vectorstore"
)

// Version is the library version.
const Version = "0.3.0"

type options struct {
	logger      *zap.Logger
	embedder    any
	fallback    any
	policy      *embedding.ModelCompatibilityPolicy
	configStore backend.ConfigStore
	auth        vectorstore.AuthProvider
	metricsNS   string
}

// Option configures the system created by [New].
type Option func(*options)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEmbedder sets the embedding source. Accepts any of the supported
// shapes: an [embedding.Provider], a bare embed function, or an object with
// an Embed or EmbedDocuments method.
func WithEmbedder(embedder any) Option {
	return func(o *options) { o.embedder = embedder }
}

// WithFallbackEmbedder sets the embedder used when the compatibility policy
// routes the primary model away.
func WithFallbackEmbedder(embedder any) Option {
	return func(o *options) { o.fallback = embedder }
}

// WithCompatibilityPolicy sets the model compatibility policy.
func WithCompatibilityPolicy(policy *embedding.ModelCompatibilityPolicy) Option {
	return func(o *options) { o.policy = policy }
}

// WithConfigStore sets the tenant config store consulted per crew build.
func WithConfigStore(store backend.ConfigStore) Option {
	return func(o *options) { o.configStore = store }
}

// WithAuthProvider sets the bearer-token source for the remote backend.
func WithAuthProvider(auth vectorstore.AuthProvider) Option {
	return func(o *options) { o.auth = auth }
}

// WithMetricsNamespace enables the Prometheus collector under the given
// namespace.
func WithMetricsNamespace(ns string) Option {
	return func(o *options) { o.metricsNS = ns }
}

// System 子系统的装配根:嵌入提供者、存储桥、后端选择器与适配器工厂。
// 一个进程一个 System,每次 crew 构建调用一次 BuildCrewMemory。
type System struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider embedding.Provider
	cache    *embedding.CachedProvider
	bridge   *bridge.Bridge
	selector *backend.Selector
	factory  *adapter.Factory
}

// New assembles the memory subsystem from configuration.
func New(cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var collector *metrics.Collector
	if o.metricsNS != "" {
		collector = metrics.NewCollector(o.metricsNS, logger)
	}

	provider, cache, err := buildProvider(cfg, o, collector, logger)
	if err != nil {
		return nil, err
	}

	b := bridge.New(bridge.Config{
		MaxWorkers: cfg.Bridge.MaxWorkers,
		QueueSize:  cfg.Bridge.QueueSize,
	}, logger)

	nsManager := backend.NewNamespaceManager(
		backend.StorageLocation{BaseDir: cfg.Storage.BaseDir}, logger)

	auth := o.auth
	if auth == nil && cfg.Backend.Remote.APIToken != "" {
		auth = vectorstore.StaticToken(cfg.Backend.Remote.APIToken)
	}

	var fallback embedding.Provider
	if o.fallback != nil {
		fallback, err = embedding.Probe(o.fallback, "", 0)
		if err != nil {
			return nil, fmt.Errorf("probe fallback embedder: %w", err)
		}
	}

	var recorder adapter.Recorder
	if collector != nil {
		recorder = collector
	}

	factory, err := adapter.NewFactory(adapter.FactoryOptions{
		Namespaces: nsManager,
		Provider:   provider,
		Fallback:   fallback,
		Policy:     o.policy,
		Bridge:     b,
		Metrics:    recorder,
		Auth:       auth,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &System{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "crewmem")),
		provider: provider,
		cache:    cache,
		bridge:   b,
		selector: backend.NewSelector(o.configStore, logger),
		factory:  factory,
	}, nil
}

// buildProvider resolves the embedding provider from options and config,
// wrapping it with the redis cache when enabled.
func buildProvider(cfg *config.Config, o options, collector *metrics.Collector, logger *zap.Logger) (embedding.Provider, *embedding.CachedProvider, error) {
	var provider embedding.Provider

	if o.embedder != nil {
		var err error
		provider, err = embedding.Probe(o.embedder, cfg.Embedder.Model, cfg.Embedder.Dimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("probe embedder: %w", err)
		}
	} else {
		provider = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:     cfg.Embedder.APIKey,
			BaseURL:    cfg.Embedder.BaseURL,
			Model:      cfg.Embedder.Model,
			Dimensions: cfg.Embedder.Dimensions,
			Timeout:    cfg.Embedder.Timeout,
		}, logger)
	}

	if !cfg.Cache.Enabled {
		return provider, nil, nil
	}

	var cacheMetrics embedding.CacheMetrics
	if collector != nil {
		cacheMetrics = collector
	}
	cached := embedding.NewCachedProvider(provider, embedding.CacheConfig{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		TTL:      cfg.Cache.TTL,
	}, cacheMetrics, logger)
	return cached, cached, nil
}

// BuildInput 一次 crew 构建的全部记忆相关输入。
type BuildInput struct {
	// ExplicitID 调用方直接指定的 crew 身份。
	ExplicitID string
	// StoredID 持久化的 crew 行 id。
	StoredID string

	AgentRoles []string
	TaskNames  []string
	CrewName   string
	Model      string
	RunName    string
	GroupID    string

	// MemoryDisabled 显式关闭本次构建的记忆。
	MemoryDisabled bool
	// AgentMemoryFlags 每个 agent 的记忆开关。
	AgentMemoryFlags []bool
}

// CrewMemory 一次 crew 构建产出的记忆句柄。
type CrewMemory struct {
	crewID   string
	disabled bool
	adapters map[types.MemoryKind]*adapter.MemoryAdapter
}

// BuildCrewMemory resolves the crew identity, selects the backend and
// assembles one adapter per active memory kind. When memory is disabled the
// returned CrewMemory is a no-op holder and no backend is constructed.
func (s *System) BuildCrewMemory(ctx context.Context, in BuildInput) (*CrewMemory, error) {
	crewID := identity.Resolve(identity.ResolveInput{
		ExplicitID: in.ExplicitID,
		StoredID:   in.StoredID,
		AgentRoles: in.AgentRoles,
		TaskNames:  in.TaskNames,
		CrewName:   in.CrewName,
		Model:      in.Model,
		RunName:    in.RunName,
		GroupID:    in.GroupID,
	})

	cfg, disabled := s.selector.Select(ctx, backend.SelectInput{
		MemoryDisabled:   in.MemoryDisabled,
		AgentMemoryFlags: in.AgentMemoryFlags,
		GroupID:          in.GroupID,
		Baseline:         s.backendBaseline(),
	})
	if disabled {
		s.logger.Info("crew memory disabled", zap.String("crew_id", crewID))
		return &CrewMemory{crewID: crewID, disabled: true}, nil
	}

	cfg.EnableRelationshipRetrieval = cfg.EnableRelationshipRetrieval ||
		s.cfg.Backend.RelationshipRetrieval

	adapters, err := s.factory.Build(ctx, cfg, crewID)
	if err != nil {
		return nil, fmt.Errorf("build crew memory: %w", err)
	}

	return &CrewMemory{crewID: crewID, adapters: adapters}, nil
}

// backendBaseline 把进程配置的 backend 段转成选择器基线。
// 租户配置存在时基线被覆盖。
func (s *System) backendBaseline() *backend.Config {
	bc := s.cfg.Backend
	cfg := backend.DefaultConfig()
	cfg.EnableRelationshipRetrieval = bc.RelationshipRetrieval
	if backend.Kind(bc.Kind) != backend.KindRemote {
		return cfg
	}
	cfg.BackendKind = backend.KindRemote
	cfg.Remote = &backend.RemoteConfig{
		BaseURL:           bc.Remote.BaseURL,
		Workspace:         bc.Remote.Workspace,
		ShortTermIndex:    bc.Remote.ShortTermIndex,
		ShortTermEndpoint: bc.Remote.ShortTermEndpoint,
		LongTermIndex:     bc.Remote.LongTermIndex,
		LongTermEndpoint:  bc.Remote.LongTermEndpoint,
		EntityIndex:       bc.Remote.EntityIndex,
		EntityEndpoint:    bc.Remote.EntityEndpoint,
		Dimension:         bc.Remote.Dimension,
		RequestsPerSecond: bc.Remote.RequestsPerSecond,
	}
	return cfg
}

// Close releases the bridge workers and the embedding cache connection.
func (s *System) Close() error {
	s.bridge.Close()
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// CrewID 返回解析出的 crew 身份。
func (m *CrewMemory) CrewID() string { return m.crewID }

// Disabled 返回本次构建的记忆是否被禁用。
func (m *CrewMemory) Disabled() bool { return m.disabled }

// ShortTerm returns the short-term adapter, or nil when inactive.
func (m *CrewMemory) ShortTerm() *adapter.MemoryAdapter {
	return m.adapters[types.MemoryShortTerm]
}

// LongTerm returns the long-term adapter, or nil when inactive.
func (m *CrewMemory) LongTerm() *adapter.MemoryAdapter {
	return m.adapters[types.MemoryLongTerm]
}

// Entity returns the entity adapter, or nil when inactive.
func (m *CrewMemory) Entity() *adapter.MemoryAdapter {
	return m.adapters[types.MemoryEntity]
}

// SetAgentContext 给所有活动适配器注入默认 agent。
func (m *CrewMemory) SetAgentContext(ref types.AgentRef) {
	for _, a := range m.adapters {
		a.SetAgentContext(ref)
	}
}
