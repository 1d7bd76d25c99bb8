package adapter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/crewmem/backend"
	"github.com/BaSui01/crewmem/embedding"
	"github.com/BaSui01/crewmem/internal/bridge"
	"github.com/BaSui01/crewmem/mapper"
	"github.com/BaSui01/crewmem/types"
	"github.com/BaSui01/crewmem/vectorstore"
)

// FactoryOptions 装配工厂的共享依赖。
type FactoryOptions struct {
	Namespaces *backend.NamespaceManager
	Provider   embedding.Provider
	Fallback   embedding.Provider
	Policy     *embedding.ModelCompatibilityPolicy
	Bridge     *bridge.Bridge
	Metrics    Recorder

	// Auth supplies bearer tokens for the remote backend. Required only
	// when building against backend.KindRemote.
	Auth vectorstore.AuthProvider

	Retriever RetrieverConfig
	Logger    *zap.Logger
}

// Factory 按后端配置为每个启用的记忆类型装配一个适配器。
// 每次 crew 构建调用一次 Build。
type Factory struct {
	opts   FactoryOptions
	logger *zap.Logger
}

// NewFactory 创建适配器工厂。
func NewFactory(opts FactoryOptions) (*Factory, error) {
	if opts.Namespaces == nil {
		return nil, fmt.Errorf("factory requires a namespace manager")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("factory requires an embedding provider")
	}
	if opts.Bridge == nil {
		return nil, fmt.Errorf("factory requires a bridge")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		opts:   opts,
		logger: logger.With(zap.String("component", "adapter_factory")),
	}, nil
}

// Build 准备 (后端类型, crew 身份) 命名空间并装配适配器。
// 命名空间准备有清空副作用,每次 crew 构建只能调用一次。
func (f *Factory) Build(ctx context.Context, cfg *backend.Config, crewID string) (map[types.MemoryKind]*MemoryAdapter, error) {
	if cfg == nil {
		cfg = backend.DefaultConfig()
	}

	nsPath, err := f.opts.Namespaces.Prepare(cfg.BackendKind, crewID)
	if err != nil {
		return nil, fmt.Errorf("prepare namespace: %w", err)
	}

	rm := mapper.New(crewID, f.opts.Provider.Model(), f.opts.Logger)

	var retriever *RelationshipRetriever
	if cfg.EnableRelationshipRetrieval {
		retriever = NewRelationshipRetriever(f.opts.Retriever, f.opts.Logger)
	}

	adapters := make(map[types.MemoryKind]*MemoryAdapter)
	for _, kind := range cfg.EnabledKinds() {
		client, err := f.buildClient(cfg, kind, crewID, nsPath)
		if err != nil {
			return nil, fmt.Errorf("build %s client: %w", kind, err)
		}

		opts := Options{
			Kind:        kind,
			CrewID:      crewID,
			Client:      client,
			Provider:    f.opts.Provider,
			Fallback:    f.opts.Fallback,
			Policy:      f.opts.Policy,
			Mapper:      rm,
			Bridge:      f.opts.Bridge,
			Metrics:     f.opts.Metrics,
			BackendName: string(cfg.BackendKind),
			Logger:      f.opts.Logger,
		}
		if kind == types.MemoryEntity {
			opts.Retriever = retriever
		}

		adapter, err := NewMemoryAdapter(opts)
		if err != nil {
			return nil, fmt.Errorf("build %s adapter: %w", kind, err)
		}
		adapters[kind] = adapter
	}

	f.logger.Info("memory adapters built",
		zap.String("crew_id", crewID),
		zap.String("backend", string(cfg.BackendKind)),
		zap.Int("kinds", len(adapters)))
	return adapters, nil
}

// buildClient 为一个记忆类型构造存储客户端。Default 后端:
// 长期记忆走关系存储,其余走本地向量存储。
func (f *Factory) buildClient(cfg *backend.Config, kind types.MemoryKind, crewID, nsPath string) (vectorstore.Client, error) {
	switch cfg.BackendKind {
	case backend.KindRemote:
		if cfg.Remote == nil {
			return nil, fmt.Errorf("remote backend selected but remote config missing")
		}
		if f.opts.Auth == nil {
			return nil, fmt.Errorf("remote backend requires an auth provider")
		}
		index, endpoint := cfg.Remote.IndexFor(kind)
		dim := cfg.Remote.Dimension
		if dim <= 0 {
			// 远端索引宽度缺省时必须与嵌入提供者一致。
			dim = f.opts.Provider.Dimensions()
		}
		return vectorstore.NewRemoteStore(vectorstore.RemoteConfig{
			BaseURL:           cfg.Remote.BaseURL,
			Workspace:         cfg.Remote.Workspace,
			Index:             index,
			Endpoint:          endpoint,
			Dimension:         dim,
			RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		}, kind, crewID, f.opts.Auth, f.opts.Logger)

	case backend.KindDefault, "":
		if kind == types.MemoryLongTerm {
			db, err := gorm.Open(sqlite.Open(filepath.Join(nsPath, "long_term.db")), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("open long-term database: %w", err)
			}
			return vectorstore.NewSQLiteStore(db, crewID, f.opts.Logger)
		}
		return vectorstore.NewChromemStore(
			filepath.Join(nsPath, string(kind)),
			kind, crewID, f.opts.Provider.Dimensions(), f.opts.Logger)

	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.BackendKind)
	}
}
