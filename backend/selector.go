package backend

import (
	"context"

	"go.uber.org/zap"
)

// ConfigStore fetches the tenant-scoped backend configuration.
// Implementations must return (nil, nil) when no active config exists.
type ConfigStore interface {
	GetActiveConfig(ctx context.Context, groupID string) (*Config, error)
}

// SelectInput 选择器输入。
type SelectInput struct {
	// MemoryDisabled 调用方显式关闭记忆。
	MemoryDisabled bool

	// AgentMemoryFlags 每个 agent 自己的记忆开关。
	// 全部为 false 时整个 crew 的记忆被禁用。
	AgentMemoryFlags []bool

	GroupID string

	// Baseline 进程级后端配置，没有租户配置时生效。
	// 为 nil 时退回内置默认。
	Baseline *Config
}

// Selector decides the effective backend configuration for one crew build.
type Selector struct {
	store  ConfigStore
	logger *zap.Logger
}

// NewSelector creates a selector. store may be nil, in which case the
// built-in default config is always used.
func NewSelector(store ConfigStore, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		store:  store,
		logger: logger.With(zap.String("component", "backend_selector")),
	}
}

// Select returns the backend config for the crew and whether memory should be
// disabled entirely. When disabled is true the returned config is nil and no
// backend must be constructed.
func (s *Selector) Select(ctx context.Context, in SelectInput) (*Config, bool) {
	if in.MemoryDisabled {
		s.logger.Debug("memory explicitly disabled by caller")
		return nil, true
	}

	// 所有 agent 都主动关闭记忆时，整个 crew 跳过后端构建。
	if len(in.AgentMemoryFlags) > 0 && allFalse(in.AgentMemoryFlags) {
		s.logger.Info("all agents opted out of memory, disabling crew memory",
			zap.Int("agents", len(in.AgentMemoryFlags)))
		return nil, true
	}

	cfg := s.fetch(ctx, in.GroupID)
	if cfg == nil || cfg.AllDisabled() {
		// 全部禁用的配置等同于未找到配置，替换为基线或内置默认。
		if cfg != nil {
			s.logger.Warn("fetched config has all memory kinds disabled, using default",
				zap.String("group_id", in.GroupID))
		}
		if in.Baseline != nil {
			cfg = in.Baseline
		} else {
			cfg = DefaultConfig()
		}
	}

	s.logger.Info("memory backend selected",
		zap.String("group_id", in.GroupID),
		zap.String("backend_kind", string(cfg.BackendKind)),
		zap.Bool("short_term", cfg.EnableShortTerm),
		zap.Bool("long_term", cfg.EnableLongTerm),
		zap.Bool("entity", cfg.EnableEntity))

	return cfg, false
}

func (s *Selector) fetch(ctx context.Context, groupID string) *Config {
	if s.store == nil {
		return nil
	}
	cfg, err := s.store.GetActiveConfig(ctx, groupID)
	if err != nil {
		// 配置存储不可达时就地恢复，替换为默认配置。
		s.logger.Warn("config store unreachable, falling back to default",
			zap.String("group_id", groupID),
			zap.Error(err))
		return nil
	}
	return cfg
}

func allFalse(flags []bool) bool {
	for _, f := range flags {
		if f {
			return false
		}
	}
	return true
}
