// Package vectorstore provides the storage clients memory adapters persist
// through: a local embedded vector store, a local relational long-term store,
// and a client for a remote vector-search service.
package vectorstore

import (
	"context"

	"github.com/BaSui01/crewmem/types"
)

// Query 向量检索请求。Embedding 为空表示"列出最近/全部"。
type Query struct {
	Embedding []float32         `json:"embedding,omitempty"`
	Kind      types.MemoryKind  `json:"kind"`
	CrewID    string            `json:"crew_id"`
	K         int               `json:"k"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// Client 存储客户端接口。每个记忆类型独占一个实例，互不共享。
type Client interface {
	// Save 持久化一条记录。
	Save(ctx context.Context, rec *types.MemoryRecord) error

	// Search 按相似度检索记录。
	Search(ctx context.Context, q Query) ([]types.SearchResult, error)
}

// Closer is an optional interface for clients holding resources. Use type
// assertion to check support:
//
//	if c, ok := client.(Closer); ok { c.Close() }
type Closer interface {
	Close() error
}
