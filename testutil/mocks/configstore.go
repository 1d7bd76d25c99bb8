// =============================================================================
// ⚙️ MockConfigStore - 租户配置存储模拟实现
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/crewmem/backend"
)

// MockConfigStore 是租户配置存储的模拟实现
type MockConfigStore struct {
	mu sync.RWMutex

	configs map[string]*backend.Config

	// 错误注入
	getErr error

	// 调用记录
	getCalls int
}

// NewMockConfigStore 创建新的 MockConfigStore
func NewMockConfigStore() *MockConfigStore {
	return &MockConfigStore{
		configs: map[string]*backend.Config{},
	}
}

// WithConfig 为租户预设配置
func (m *MockConfigStore) WithConfig(groupID string, cfg *backend.Config) *MockConfigStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[groupID] = cfg
	return m
}

// WithGetError 设置 GetActiveConfig 方法的错误
func (m *MockConfigStore) WithGetError(err error) *MockConfigStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// GetActiveConfig 返回租户配置；未预设时返回 (nil, nil)
func (m *MockConfigStore) GetActiveConfig(ctx context.Context, groupID string) (*backend.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.configs[groupID], nil
}

// GetCalls 返回 GetActiveConfig 调用次数
func (m *MockConfigStore) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}
