// Package backend decides which memory kinds are active for a crew build and
// which storage backend serves them, and prepares crew-scoped storage
// namespaces.
package backend

import "github.com/BaSui01/crewmem/types"

// Kind 存储后端类型。
type Kind string

const (
	// KindDefault 本地嵌入式向量 + 关系存储。
	KindDefault Kind = "default"

	// KindRemote 外部托管的向量检索服务。
	KindRemote Kind = "remote"
)

// RemoteConfig 远程后端的每类型索引/端点配置。
// Dimension 必须与 EmbeddingProvider 输出一致，否则读写错乱；
// 后端类型切换时通过强制新命名空间缓解。
type RemoteConfig struct {
	Workspace string `yaml:"workspace" json:"workspace"`

	ShortTermIndex    string `yaml:"short_term_index" json:"short_term_index"`
	ShortTermEndpoint string `yaml:"short_term_endpoint" json:"short_term_endpoint"`
	LongTermIndex     string `yaml:"long_term_index" json:"long_term_index"`
	LongTermEndpoint  string `yaml:"long_term_endpoint" json:"long_term_endpoint"`
	EntityIndex       string `yaml:"entity_index" json:"entity_index"`
	EntityEndpoint    string `yaml:"entity_endpoint" json:"entity_endpoint"`

	BaseURL   string `yaml:"base_url" json:"base_url"`
	Dimension int    `yaml:"dimension" json:"dimension"`

	// RequestsPerSecond 客户端限速，0 表示不限速。
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// IndexFor returns the (index, endpoint) pair configured for a memory kind.
func (r *RemoteConfig) IndexFor(kind types.MemoryKind) (string, string) {
	switch kind {
	case types.MemoryShortTerm:
		return r.ShortTermIndex, r.ShortTermEndpoint
	case types.MemoryLongTerm:
		return r.LongTermIndex, r.LongTermEndpoint
	case types.MemoryEntity:
		return r.EntityIndex, r.EntityEndpoint
	}
	return "", ""
}

// Config 描述一次 crew 构建的记忆后端配置。
type Config struct {
	BackendKind Kind `yaml:"backend_kind" json:"backend_kind"`

	EnableShortTerm bool `yaml:"enable_short_term" json:"enable_short_term"`
	EnableLongTerm  bool `yaml:"enable_long_term" json:"enable_long_term"`
	EnableEntity    bool `yaml:"enable_entity" json:"enable_entity"`

	// EnableRelationshipRetrieval 控制实体检索时是否做关系图扩展。
	EnableRelationshipRetrieval bool `yaml:"enable_relationship_retrieval" json:"enable_relationship_retrieval"`

	Remote *RemoteConfig `yaml:"remote,omitempty" json:"remote,omitempty"`
}

// AllDisabled reports whether every memory kind is switched off. Such a
// config is treated as equivalent to "no config found".
func (c *Config) AllDisabled() bool {
	return !c.EnableShortTerm && !c.EnableLongTerm && !c.EnableEntity
}

// EnabledKinds returns the active memory kinds in stable order.
func (c *Config) EnabledKinds() []types.MemoryKind {
	kinds := make([]types.MemoryKind, 0, 3)
	if c.EnableShortTerm {
		kinds = append(kinds, types.MemoryShortTerm)
	}
	if c.EnableLongTerm {
		kinds = append(kinds, types.MemoryLongTerm)
	}
	if c.EnableEntity {
		kinds = append(kinds, types.MemoryEntity)
	}
	return kinds
}

// DefaultConfig 返回内置默认配置：本地存储，所有记忆类型开启。
func DefaultConfig() *Config {
	return &Config{
		BackendKind:     KindDefault,
		EnableShortTerm: true,
		EnableLongTerm:  true,
		EnableEntity:    true,
	}
}
