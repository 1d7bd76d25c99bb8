package adapter

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/crewmem/types"
	"github.com/BaSui01/crewmem/vectorstore"
)

// RetrieverConfig bounds the relationship graph walk.
type RetrieverConfig struct {
	// MaxHops 从初始相似度结果出发的最大跳数。
	MaxHops int `json:"max_hops"`

	// MaxResults 扩展后的结果上限,含初始结果。
	MaxResults int `json:"max_results"`

	// SimilarityWeight 混合得分中相似度的权重 w:
	// score = w*similarity + (1-w)*hopDecay。
	SimilarityWeight float64 `json:"similarity_weight"`
}

// DefaultRetrieverConfig returns sensible defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		MaxHops:          2,
		MaxResults:       20,
		SimilarityWeight: 0.7,
	}
}

// RelationshipRetriever 沿实体记录携带的关系边扩展相似度结果集。
// 任何失败都降级为原始相似度结果,不向上抛错。
type RelationshipRetriever struct {
	cfg    RetrieverConfig
	logger *zap.Logger
}

// NewRelationshipRetriever 创建关系检索器。
func NewRelationshipRetriever(cfg RetrieverConfig, logger *zap.Logger) *RelationshipRetriever {
	def := DefaultRetrieverConfig()
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = def.MaxHops
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.SimilarityWeight <= 0 || cfg.SimilarityWeight > 1 {
		cfg.SimilarityWeight = def.SimilarityWeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationshipRetriever{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "relationship_retriever")),
	}
}

// Expand 广度优先遍历关系目标,按混合得分排序并截断。
// client 检索出错时返回截至当时已收集的结果。
func (r *RelationshipRetriever) Expand(ctx context.Context, client vectorstore.Client, initial []types.SearchResult) (out []types.SearchResult) {
	if len(initial) == 0 {
		return initial
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("relationship expansion panicked, degrading to similarity set",
				zap.Any("panic", rec))
			out = initial
		}
	}()

	seen := make(map[string]struct{}, len(initial))
	out = make([]types.SearchResult, len(initial))
	copy(out, initial)

	frontier := make([]string, 0)
	for _, res := range initial {
		seen[res.Record.ID] = struct{}{}
		if res.Record.EntityName != "" {
			seen["name:"+res.Record.EntityName] = struct{}{}
		}
		frontier = appendTargets(frontier, res.Record.Relationships)
	}

	w := r.cfg.SimilarityWeight
	for hop := 1; hop <= r.cfg.MaxHops && len(frontier) > 0 && len(out) < r.cfg.MaxResults; hop++ {
		decay := 1.0 / float64(1+hop)
		var next []string

		for _, target := range frontier {
			if _, ok := seen["name:"+target]; ok {
				continue
			}
			seen["name:"+target] = struct{}{}

			found, err := client.Search(ctx, vectorstore.Query{
				Kind:    types.MemoryEntity,
				K:       3,
				Filters: map[string]string{"entity_name": target},
			})
			if err != nil {
				r.logger.Warn("relationship hop failed, returning partial expansion",
					zap.String("target", target),
					zap.Int("hop", hop),
					zap.Error(err))
				return rankAndCap(out, r.cfg.MaxResults)
			}

			for _, res := range found {
				if _, ok := seen[res.Record.ID]; ok {
					continue
				}
				seen[res.Record.ID] = struct{}{}

				res.Score = w*res.Score + (1-w)*decay
				out = append(out, res)
				next = appendTargets(next, res.Record.Relationships)

				if len(out) >= r.cfg.MaxResults {
					return rankAndCap(out, r.cfg.MaxResults)
				}
			}
		}
		frontier = next
	}

	return rankAndCap(out, r.cfg.MaxResults)
}

func appendTargets(targets []string, rels []types.Relationship) []string {
	for _, rel := range rels {
		if rel.Target != "" {
			targets = append(targets, rel.Target)
		}
	}
	return targets
}

func rankAndCap(results []types.SearchResult, limit int) []types.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
