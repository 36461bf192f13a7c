package relay

import "errors"

// 错误定义
var (
	// 连接相关错误
	ErrTooManyConnections = errors.New("relay: too many connections")
	ErrConnectionClosed   = errors.New("relay: connection closed")
	ErrChannelFull        = errors.New("relay: send channel full")

	// 存储相关错误
	ErrNotFound = errors.New("relay: not found")

	// 路由相关错误
	ErrHandlerExists   = errors.New("relay: handler already exists")
	ErrUnknownIdentity = errors.New("relay: unknown identity")

	// 生命周期相关错误
	ErrEngineClosed = errors.New("relay: engine closed")

	// 配置相关错误
	ErrInvalidConfig = errors.New("relay: invalid config")
)
