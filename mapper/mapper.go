// Package mapper 将三种互不兼容的保存调用形态规范化为统一的 MemoryRecord。
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/crewmem/types"
)

// Mapper converts SaveRequests into canonical MemoryRecords. ToRecord never
// fails: a request with no usable text maps to nil, which callers log and
// skip.
type Mapper struct {
	crewID       string
	defaultModel string
	logger       *zap.Logger
}

// New 创建记录映射器。defaultModel 是当前 EmbeddingProvider 的模型标识，
// 作为记录 EmbeddingModel 的默认值。
func New(crewID, defaultModel string, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{
		crewID:       crewID,
		defaultModel: defaultModel,
		logger:       logger.With(zap.String("component", "record_mapper")),
	}
}

// ToRecord 将保存请求规范化为一条记录。无可用文本时返回 nil。
func (m *Mapper) ToRecord(req types.SaveRequest) *types.MemoryRecord {
	if req == nil {
		return nil
	}

	var rec *types.MemoryRecord
	switch r := req.(type) {
	case types.ShortTermSave:
		rec = m.shortTerm(r)
	case *types.ShortTermSave:
		rec = m.shortTerm(*r)
	case types.LongTermSave:
		rec = m.longTerm(r)
	case *types.LongTermSave:
		rec = m.longTerm(*r)
	case types.EntitySave:
		rec = m.entity(r)
	case *types.EntitySave:
		rec = m.entity(*r)
	default:
		m.logger.Warn("unknown save request shape, skipping",
			zap.String("type", fmt.Sprintf("%T", req)))
		return nil
	}

	if rec == nil {
		return nil
	}

	rec.ID = uuid.NewString()
	rec.CrewID = m.crewID
	rec.CreatedAt = time.Now().UTC()
	if rec.EmbeddingModel == "" {
		rec.EmbeddingModel = m.defaultModel
	}
	return rec
}

func (m *Mapper) shortTerm(r types.ShortTermSave) *types.MemoryRecord {
	text := stringify(r.Value)
	if text == "" {
		text = textFromMetadata(r.Metadata)
	}
	if text == "" {
		m.logger.Debug("short-term save without usable text, skipping")
		return nil
	}

	rec := &types.MemoryRecord{
		Kind:      types.MemoryShortTerm,
		Text:      text,
		Content:   text,
		AgentID:   resolveAgentID(r.Agent, r.Metadata, r.RawAgent),
		QueryText: metaString(r.Metadata, "query"),
		SessionID: metaString(r.Metadata, "session_id"),
		Metadata:  r.Metadata,
	}
	fillCommon(rec, r.Metadata)
	return rec
}

func (m *Mapper) longTerm(r types.LongTermSave) *types.MemoryRecord {
	task := strings.TrimSpace(r.Item.Task)
	if task == "" {
		task = textFromMetadata(r.Item.Metadata)
	}
	if task == "" {
		m.logger.Debug("long-term save without task description, skipping")
		return nil
	}

	rec := &types.MemoryRecord{
		Kind:            types.MemoryLongTerm,
		Text:            task,
		TaskDescription: task,
		Quality:         r.Item.Quality,
		Importance:      metaFloat(r.Item.Metadata, "importance"),
		AgentID:         resolveAgentID(nil, r.Item.Metadata, r.Item.Agent),
		Metadata:        r.Item.Metadata,
	}
	fillCommon(rec, r.Item.Metadata)
	return rec
}

func (m *Mapper) entity(r types.EntitySave) *types.MemoryRecord {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		text = textFromMetadata(r.Metadata)
	}
	if text == "" {
		m.logger.Debug("entity save without usable text, skipping")
		return nil
	}

	parsed := ParseEntity(text)

	rec := &types.MemoryRecord{
		Kind:          types.MemoryEntity,
		Text:          text,
		EntityName:    parsed.Name,
		EntityType:    parsed.Type,
		Description:   parsed.Description,
		Attributes:    parsed.Attributes,
		Relationships: relationshipsFromMetadata(r.Metadata),
		AgentID:       resolveAgentID(r.Agent, r.Metadata, r.RawAgent),
		Metadata:      r.Metadata,
	}
	fillCommon(rec, r.Metadata)
	return rec
}

// fillCommon 从元数据提取跨类型的通用字段。
func fillCommon(rec *types.MemoryRecord, meta map[string]any) {
	if rec.LLMModel == "" {
		rec.LLMModel = metaString(meta, "llm_model")
	}
	if model := metaString(meta, "embedding_model"); model != "" {
		rec.EmbeddingModel = model
	}
	rec.ToolsUsed = metaStrings(meta, "tools_used")
}

// relationshipsFromMetadata 从元数据恢复关系列表，接受多种宽松形态。
func relationshipsFromMetadata(meta map[string]any) []types.Relationship {
	raw, ok := meta["relationships"]
	if !ok {
		return nil
	}

	var out []types.Relationship
	switch rels := raw.(type) {
	case []types.Relationship:
		return rels
	case []string:
		for _, target := range rels {
			if target != "" {
				out = append(out, types.Relationship{Target: target})
			}
		}
	case []any:
		for _, item := range rels {
			switch rel := item.(type) {
			case string:
				if rel != "" {
					out = append(out, types.Relationship{Target: rel})
				}
			case map[string]any:
				target, _ := rel["target"].(string)
				relType, _ := rel["type"].(string)
				if target != "" {
					out = append(out, types.Relationship{Target: target, Type: relType})
				}
			}
		}
	}
	return out
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// textFromMetadata 兜底：从常见的元数据键里找文本。
func textFromMetadata(meta map[string]any) string {
	for _, key := range []string{"data", "content", "text", "value"} {
		if s := metaString(meta, key); s != "" {
			return s
		}
	}
	return ""
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func metaFloat(meta map[string]any, key string) float64 {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func metaStrings(meta map[string]any, key string) []string {
	if meta == nil {
		return nil
	}
	switch v := meta[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}
