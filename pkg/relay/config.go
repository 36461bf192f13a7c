package relay

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokmz/scchat/pkg/logger"
)

// Config 引擎配置
type Config struct {
	// 连接配置
	MaxConnections   int           // 最大连接数
	ReadBufferSize   int           // 读缓冲区大小
	WriteBufferSize  int           // 写缓冲区大小
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 最大帧大小

	// 心跳配置
	HeartbeatInterval time.Duration // 探测周期；错过一次应答即驱逐

	// 发送配置
	SendQueueSize int           // 每连接发送队列大小
	WriteWait     time.Duration // 单次写超时

	// Upgrader 配置
	CheckOrigin    func(*http.Request) bool // Origin 检查函数
	AllowedOrigins []string                 // 允许的 Origin 白名单

	// 可观测性
	Logger  logger.Logger
	Metrics Metrics
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		HeartbeatInterval: 15 * time.Second,
		SendQueueSize:     256,
		WriteWait:         10 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: MaxConnections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: ReadBufferSize must be positive, got %d", ErrInvalidConfig, c.ReadBufferSize)
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: WriteBufferSize must be positive, got %d", ErrInvalidConfig, c.WriteBufferSize)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: HeartbeatInterval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: SendQueueSize must be positive, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithMaxConnections 设置最大连接数
func WithMaxConnections(max int) Option {
	return func(c *Config) {
		c.MaxConnections = max
	}
}

// WithHeartbeatInterval 设置心跳探测周期
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithSendQueueSize 设置发送队列大小
func WithSendQueueSize(size int) Option {
	return func(c *Config) {
		c.SendQueueSize = size
	}
}

// WithMessageSizeLimit 设置帧大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithLogger 设置日志器
func WithLogger(log logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithMetrics 设置监控
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 设置 Origin 白名单
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.AllowedOrigins = allowedOrigins
		c.CheckOrigin = createWhitelistChecker(allowedOrigins)
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

// defaultCheckOrigin 默认 Origin 检查（同源策略）
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// createWhitelistChecker 创建白名单检查器
func createWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	whitelist := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		whitelist[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		return whitelist[origin]
	}
}

// newUpgrader 根据配置构建 websocket.Upgrader
func (c *Config) newUpgrader() *websocket.Upgrader {
	checkOrigin := c.CheckOrigin
	if checkOrigin == nil {
		if len(c.AllowedOrigins) > 0 {
			checkOrigin = createWhitelistChecker(c.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:   c.ReadBufferSize,
		WriteBufferSize:  c.WriteBufferSize,
		HandshakeTimeout: c.HandshakeTimeout,
		CheckOrigin:      checkOrigin,
	}
}
