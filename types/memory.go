// Package types provides unified type definitions for the crewmem subsystem.
package types

import "time"

// MemoryKind 定义统一的记忆类型。
type MemoryKind string

const (
	// MemoryShortTerm 短期记忆 - 当前会话的临时上下文。
	MemoryShortTerm MemoryKind = "short_term"

	// MemoryLongTerm 长期记忆 - 跨运行的任务质量历史。
	MemoryLongTerm MemoryKind = "long_term"

	// MemoryEntity 实体记忆 - 命名实体事实与关系。
	MemoryEntity MemoryKind = "entity"
)

// Kinds lists every memory kind in a stable order.
func Kinds() []MemoryKind {
	return []MemoryKind{MemoryShortTerm, MemoryLongTerm, MemoryEntity}
}

// Valid reports whether k is a known memory kind.
func (k MemoryKind) Valid() bool {
	switch k {
	case MemoryShortTerm, MemoryLongTerm, MemoryEntity:
		return true
	}
	return false
}

// Relationship 表示实体之间的一条有向关系。
type Relationship struct {
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
}

// MemoryRecord 统一记忆结构。三种记忆类型共享通用字段，
// 类型特有字段按 Kind 填充。
type MemoryRecord struct {
	ID             string     `json:"id"`
	Kind           MemoryKind `json:"kind"`
	Text           string     `json:"text"`
	Embedding      []float32  `json:"embedding,omitempty"`
	EmbeddingModel string     `json:"embedding_model,omitempty"`
	AgentID        string     `json:"agent_id"`
	LLMModel       string     `json:"llm_model,omitempty"`
	ToolsUsed      []string   `json:"tools_used,omitempty"`
	CrewID         string     `json:"crew_id"`
	CreatedAt      time.Time  `json:"created_at"`

	// 短期记忆字段
	Content   string `json:"content,omitempty"`
	QueryText string `json:"query_text,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// 长期记忆字段
	TaskDescription string  `json:"task_description,omitempty"`
	Quality         float64 `json:"quality,omitempty"`
	Importance      float64 `json:"importance,omitempty"`

	// 实体记忆字段
	EntityName    string         `json:"entity_name,omitempty"`
	EntityType    string         `json:"entity_type,omitempty"`
	Description   string         `json:"description,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult 向量检索结果。Context 总是非空，
// 无论来源字段是 data、content 还是其他。
type SearchResult struct {
	Record  MemoryRecord `json:"record"`
	Score   float64      `json:"score"`
	Context string       `json:"context"`
}

// LoadedItem is the shape the orchestration runtime expects from Load.
type LoadedItem struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// AgentRef identifies the agent performing a memory operation. The runtime
// supplies it inconsistently, so every field is optional.
type AgentRef struct {
	Role string `json:"role,omitempty"`
	ID   string `json:"id,omitempty"`
}

// DefaultAgentID is used when no agent information can be resolved at all.
const DefaultAgentID = "default_agent"
