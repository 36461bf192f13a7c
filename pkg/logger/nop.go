package logger

import "go.uber.org/zap"

// nop 丢弃所有日志的 Logger
type nop struct{}

// Nop 返回丢弃所有日志的 Logger，供测试与缺省场景使用
func Nop() Logger {
	return nop{}
}

func (nop) Debug(string, ...zap.Field) {}
func (nop) Info(string, ...zap.Field)  {}
func (nop) Warn(string, ...zap.Field)  {}
func (nop) Error(string, ...zap.Field) {}
func (nop) Fatal(string, ...zap.Field) {}

func (n nop) With(...zap.Field) Logger { return n }
func (nop) Sync() error                { return nil }
func (nop) SetLevel(Level)             {}
func (nop) Level() Level               { return InfoLevel }
