// =============================================================================
// 📦 CrewMem 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("crewmem.yaml").
//	    WithEnvPrefix("CREWMEM").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是记忆子系统的完整配置结构
type Config struct {
	// Storage 本地存储配置
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Backend 存储后端配置
	Backend BackendConfig `yaml:"backend" env:"BACKEND"`

	// Embedder 嵌入提供者配置
	Embedder EmbedderConfig `yaml:"embedder" env:"EMBEDDER"`

	// Cache 嵌入缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Bridge 存储桥配置
	Bridge BridgeConfig `yaml:"bridge" env:"BRIDGE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// StorageConfig 本地存储配置
type StorageConfig struct {
	// 命名空间根目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
}

// BackendConfig 存储后端配置
type BackendConfig struct {
	// 类型: default, remote
	Kind string `yaml:"kind" env:"KIND"`
	// 实体检索是否做关系图扩展
	RelationshipRetrieval bool `yaml:"relationship_retrieval" env:"RELATIONSHIP_RETRIEVAL"`
	// Remote 远程后端配置
	Remote RemoteConfig `yaml:"remote" env:"REMOTE"`
}

// RemoteConfig 远程向量检索服务配置
type RemoteConfig struct {
	// 服务地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 工作区
	Workspace string `yaml:"workspace" env:"WORKSPACE"`
	// 各记忆类型的索引与查询端点
	ShortTermIndex    string `yaml:"short_term_index" env:"SHORT_TERM_INDEX"`
	ShortTermEndpoint string `yaml:"short_term_endpoint" env:"SHORT_TERM_ENDPOINT"`
	LongTermIndex     string `yaml:"long_term_index" env:"LONG_TERM_INDEX"`
	LongTermEndpoint  string `yaml:"long_term_endpoint" env:"LONG_TERM_ENDPOINT"`
	EntityIndex       string `yaml:"entity_index" env:"ENTITY_INDEX"`
	EntityEndpoint    string `yaml:"entity_endpoint" env:"ENTITY_ENDPOINT"`
	// 向量维度
	Dimension int `yaml:"dimension" env:"DIMENSION"`
	// 请求频率上限
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// 访问令牌
	APIToken string `yaml:"api_token" env:"API_TOKEN"`
}

// EmbedderConfig 嵌入提供者配置
type EmbedderConfig struct {
	// 提供者: openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型标识
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// API 密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 服务地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 缓存过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// BridgeConfig 存储桥配置
type BridgeConfig struct {
	// 最大工作线程数
	MaxWorkers int `yaml:"max_workers" env:"MAX_WORKERS"`
	// 队列容量
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CREWMEM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Backend.Kind != "default" && c.Backend.Kind != "remote" {
		errs = append(errs, fmt.Sprintf("unknown backend kind %q", c.Backend.Kind))
	}
	if c.Backend.Kind == "remote" && c.Backend.Remote.BaseURL == "" {
		errs = append(errs, "remote backend requires base_url")
	}
	if c.Embedder.Dimensions <= 0 {
		errs = append(errs, "embedder dimensions must be positive")
	}
	if c.Bridge.MaxWorkers <= 0 {
		errs = append(errs, "bridge max_workers must be positive")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache requires an address when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
