package types

// SaveRequest 统一三种互不兼容的保存调用形态。
// 每种记忆类型通过自己的构造形态落到同一个持久化入口。
type SaveRequest interface {
	Kind() MemoryKind
}

// ShortTermSave 短期记忆保存请求：值 + 元数据。
type ShortTermSave struct {
	Value    any
	Metadata map[string]any
	Agent    *AgentRef
	// RawAgent 是运行时偶尔直接传入的 agent 字符串。
	RawAgent string
}

func (ShortTermSave) Kind() MemoryKind { return MemoryShortTerm }

// LongTermItem 长期记忆条目，运行时以单个对象整体提交。
type LongTermItem struct {
	Task            string         `json:"task"`
	Agent           string         `json:"agent"`
	Quality         float64        `json:"quality"`
	ExpectedOutput  string         `json:"expected_output,omitempty"`
	DateTime        string         `json:"datetime,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// LongTermSave 长期记忆保存请求。
type LongTermSave struct {
	Item LongTermItem
}

func (LongTermSave) Kind() MemoryKind { return MemoryLongTerm }

// EntitySave 实体记忆保存请求：自由文本 + 关系元数据。
type EntitySave struct {
	Text     string
	Metadata map[string]any
	Agent    *AgentRef
	RawAgent string
}

func (EntitySave) Kind() MemoryKind { return MemoryEntity }
