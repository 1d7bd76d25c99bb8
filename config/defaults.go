// =============================================================================
// 📦 CrewMem 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Storage:  DefaultStorageConfig(),
		Backend:  DefaultBackendConfig(),
		Embedder: DefaultEmbedderConfig(),
		Cache:    DefaultCacheConfig(),
		Bridge:   DefaultBridgeConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return StorageConfig{
		BaseDir: filepath.Join(base, "crewmem"),
	}
}

// DefaultBackendConfig 返回默认后端配置
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Kind: "default",
	}
}

// DefaultEmbedderConfig 返回默认嵌入提供者配置
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		BaseURL:    "https://api.openai.com",
		Timeout:    30 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		TTL:     24 * time.Hour,
	}
}

// DefaultBridgeConfig 返回默认存储桥配置
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		MaxWorkers: 8,
		QueueSize:  256,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}
