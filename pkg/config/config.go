package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// App 应用配置
type App struct {
	Server    ServerConfig    `mapstructure:"server"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Push      PushConfig      `mapstructure:"push"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig HTTP/WebSocket 服务配置
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`            // 监听地址
	AllowedOrigins []string `mapstructure:"allowed_origins"` // 跨域白名单，空则同源
}

// HeartbeatConfig 心跳与连接配置
type HeartbeatConfig struct {
	Interval       time.Duration `mapstructure:"interval"`        // 巡检周期
	MaxConnections int           `mapstructure:"max_connections"` // 最大并发连接数
}

// StorageConfig 存储后端配置
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // memory/sqlite/redis
	DSN     string      `mapstructure:"dsn"`     // sqlite 数据库文件路径
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis 离线队列配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PushConfig Web Push 推送配置
type PushConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Subscriber      string `mapstructure:"subscriber"` // mailto: 联系地址
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"` // 空则仅控制台输出
}

// Manager 配置管理器：封装 viper，支持文件、环境变量与热更新
type Manager struct {
	viper *viper.Viper
	mu    sync.RWMutex

	configFile  string
	configName  string
	configType  string
	configPaths []string

	autoWatch bool
	watching  bool
	onChange  func(*App)

	envPrefix string
	defaults  map[string]any
}

// New 创建配置管理器
func New(opts ...Option) *Manager {
	m := &Manager{
		viper:      viper.New(),
		configName: "scchat",
		configType: "yaml",
		envPrefix:  "SCCHAT",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load 加载配置文件并应用默认值与环境变量。
// 配置文件缺失不是错误，此时仅有默认值与环境变量生效。
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range builtinDefaults {
		m.viper.SetDefault(k, v)
	}
	for k, v := range m.defaults {
		m.viper.SetDefault(k, v)
	}

	if m.envPrefix != "" {
		m.viper.SetEnvPrefix(m.envPrefix)
		m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		m.viper.AutomaticEnv()
	}

	if m.configFile != "" {
		m.viper.SetConfigFile(m.configFile)
	} else {
		m.viper.SetConfigName(m.configName)
		m.viper.SetConfigType(m.configType)
		if len(m.configPaths) == 0 {
			m.viper.AddConfigPath(".")
		}
		for _, path := range m.configPaths {
			m.viper.AddConfigPath(path)
		}
	}

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("%w: %w", ErrReadFailed, err)
		}
	}

	if m.autoWatch {
		m.startWatch()
	}

	return nil
}

// builtinDefaults 内置默认值
var builtinDefaults = map[string]any{
	"server.addr":               ":8080",
	"heartbeat.interval":        "15s",
	"heartbeat.max_connections": 10000,
	"storage.backend":           "memory",
	"storage.redis.addr":        "localhost:6379",
	"push.enabled":              false,
	"log.level":                 "info",
	"log.format":                "json",
}

// App 反序列化为应用配置结构
func (m *Manager) App() (*App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var app App
	if err := m.viper.Unmarshal(&app); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return &app, nil
}

// GetString 获取字符串配置值
func (m *Manager) GetString(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.GetString(key)
}

// GetInt 获取整数配置值
func (m *Manager) GetInt(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.GetInt(key)
}

// GetBool 获取布尔配置值
func (m *Manager) GetBool(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.GetBool(key)
}

// GetDuration 获取时间间隔配置值
func (m *Manager) GetDuration(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.GetDuration(key)
}

// Set 设置配置值（优先级高于文件与环境变量）
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viper.Set(key, value)
}

// IsSet 检查配置键是否存在
func (m *Manager) IsSet(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.IsSet(key)
}

// SetOnChange 设置配置变更回调，可在 Load 之后调整
func (m *Manager) SetOnChange(fn func(*App)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// ConfigFileUsed 实际加载的配置文件路径，未加载文件时为空
func (m *Manager) ConfigFileUsed() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.ConfigFileUsed()
}
