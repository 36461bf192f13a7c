package config

import "errors"

var (
	// ErrReadFailed 配置文件读取失败
	ErrReadFailed = errors.New("config: read failed")
	// ErrUnmarshalFailed 配置反序列化失败
	ErrUnmarshalFailed = errors.New("config: unmarshal failed")
)
