// =============================================================================
// 🗄️ MockVectorClient - 向量存储客户端模拟实现
// =============================================================================
// 用于测试的存储客户端模拟，支持预设检索结果、错误注入与调用记录
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/crewmem/types"
	"github.com/BaSui01/crewmem/vectorstore"
)

// MockVectorClient 是存储客户端的模拟实现
type MockVectorClient struct {
	mu sync.RWMutex

	// 保存的记录
	saved []*types.MemoryRecord

	// 预设检索结果：先按 entity_name 过滤条件匹配，再回退到默认结果
	results       []types.SearchResult
	resultsByName map[string][]types.SearchResult

	// 错误注入
	saveErr   error
	searchErr error

	// 调用记录
	saveCalls   int
	searchCalls int
	queries     []vectorstore.Query
}

// NewMockVectorClient 创建新的 MockVectorClient
func NewMockVectorClient() *MockVectorClient {
	return &MockVectorClient{
		resultsByName: map[string][]types.SearchResult{},
	}
}

// WithResults 预设默认检索结果
func (m *MockVectorClient) WithResults(results []types.SearchResult) *MockVectorClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	return m
}

// WithResultsForEntity 为 entity_name 过滤条件预设检索结果
func (m *MockVectorClient) WithResultsForEntity(name string, results []types.SearchResult) *MockVectorClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resultsByName[name] = results
	return m
}

// WithSaveError 设置 Save 方法的错误
func (m *MockVectorClient) WithSaveError(err error) *MockVectorClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithSearchError 设置 Search 方法的错误
func (m *MockVectorClient) WithSearchError(err error) *MockVectorClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
	return m
}

// Save 记录保存调用
func (m *MockVectorClient) Save(ctx context.Context, rec *types.MemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, rec)
	return nil
}

// Search 返回预设结果
func (m *MockVectorClient) Search(ctx context.Context, q vectorstore.Query) ([]types.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	m.queries = append(m.queries, q)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if name, ok := q.Filters["entity_name"]; ok {
		return m.resultsByName[name], nil
	}
	return m.results, nil
}

// Saved 返回已保存的记录
func (m *MockVectorClient) Saved() []*types.MemoryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.MemoryRecord, len(m.saved))
	copy(out, m.saved)
	return out
}

// SaveCalls 返回 Save 调用次数
func (m *MockVectorClient) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}

// SearchCalls 返回 Search 调用次数
func (m *MockVectorClient) SearchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searchCalls
}

// Queries 返回所有检索请求
func (m *MockVectorClient) Queries() []vectorstore.Query {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]vectorstore.Query, len(m.queries))
	copy(out, m.queries)
	return out
}
