package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/BaSui01/crewmem/types"
)

// ChromemStore 基于 chromem-go 的本地嵌入式向量存储。
// 每个 (后端类型, crew 身份) 命名空间一个持久化目录，
// 每个记忆类型一个独立实例。
type ChromemStore struct {
	col    *chromem.Collection
	kind   types.MemoryKind
	crewID string
	dims   int
	logger *zap.Logger
}

// NewChromemStore opens (or creates) the persistent collection for one
// memory kind inside the given namespace directory. dims is the embedding
// dimension of the active provider; it sizes the probe vector used for
// listing queries.
func NewChromemStore(namespacePath string, kind types.MemoryKind, crewID string, dims int, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid memory kind %q", kind)
	}

	db, err := chromem.NewPersistentDB(namespacePath, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store at %s: %w", namespacePath, err)
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection("crewmem_"+string(kind), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection for kind %s: %w", kind, err)
	}

	return &ChromemStore{
		col:    col,
		kind:   kind,
		crewID: crewID,
		dims:   dims,
		logger: logger.With(
			zap.String("component", "chromem_store"),
			zap.String("kind", string(kind))),
	}, nil
}

// Save 持久化一条记录。完整记录序列化进 Content，关键字段进元数据。
func (s *ChromemStore) Save(ctx context.Context, rec *types.MemoryRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("record %s has no embedding", rec.ID)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	meta := map[string]string{
		"crew_id":         rec.CrewID,
		"kind":            string(rec.Kind),
		"agent_id":        rec.AgentID,
		"embedding_model": rec.EmbeddingModel,
	}
	if rec.EntityName != "" {
		meta["entity_name"] = rec.EntityName
	}
	if rec.SessionID != "" {
		meta["session_id"] = rec.SessionID
	}

	err = s.col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   string(payload),
		Embedding: rec.Embedding,
		Metadata:  meta,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debug("record saved",
		zap.String("id", rec.ID),
		zap.String("agent_id", rec.AgentID))
	return nil
}

// Search 按相似度检索。空查询向量使用均匀探针向量，效果等同于
// "列出全部"。
func (s *ChromemStore) Search(ctx context.Context, q Query) ([]types.SearchResult, error) {
	count := s.col.Count()
	if count == 0 {
		return []types.SearchResult{}, nil
	}

	k := q.K
	if k <= 0 {
		k = 10
	}
	// chromem 要求 nResults 不超过文档数。
	if k > count {
		k = count
	}

	embedding := q.Embedding
	listing := isZeroOrEmpty(embedding)
	if listing {
		embedding = probeVector(s.dims)
	}

	where := map[string]string{"crew_id": s.crewID}
	for key, v := range q.Filters {
		where[key] = v
	}

	// 过滤后的文档数可能小于 nResults，chromem 会直接报错，
	// 递减重试直到成功或集合确认为空。
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		var err error
		results, err = s.col.QueryEmbedding(ctx, embedding, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocs(err) {
			if limit == 1 {
				return []types.SearchResult{}, nil
			}
			continue
		}
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		var rec types.MemoryRecord
		if err := json.Unmarshal([]byte(r.Content), &rec); err != nil {
			s.logger.Warn("skipping undecodable record",
				zap.String("id", r.ID), zap.Error(err))
			continue
		}
		score := float64(r.Similarity)
		if listing {
			// 探针向量的相似度没有语义，不向上泄漏。
			score = 0
		}
		out = append(out, types.SearchResult{
			Record:  rec,
			Score:   score,
			Context: rec.Text,
		})
	}
	return out, nil
}

// Count 返回当前集合的文档数。
func (s *ChromemStore) Count() int { return s.col.Count() }

func isInsufficientDocs(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") ||
		strings.Contains(msg, "number of documents")
}

func isZeroOrEmpty(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// probeVector 返回单位均匀向量，用于无查询向量时的"列出"语义。
func probeVector(dim int) []float32 {
	if dim <= 0 {
		dim = 1536
	}
	v := float32(1.0 / math.Sqrt(float64(dim)))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = v
	}
	return vec
}
