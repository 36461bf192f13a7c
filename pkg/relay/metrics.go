package relay

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	SetConnectionCount(count int)

	// 投递指标
	IncrementDelivered()
	IncrementQueued()
	IncrementDrained(count int)

	// 心跳指标
	IncrementEvictions()

	// 在线列表指标
	IncrementPresenceBroadcasts()

	// 错误指标
	IncrementInvalidFrames()
	IncrementPushFailures()
	IncrementDroppedMessages()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections()         {}
func (m *NoopMetrics) DecrementConnections()         {}
func (m *NoopMetrics) SetConnectionCount(count int)  {}
func (m *NoopMetrics) IncrementDelivered()           {}
func (m *NoopMetrics) IncrementQueued()              {}
func (m *NoopMetrics) IncrementDrained(count int)    {}
func (m *NoopMetrics) IncrementEvictions()           {}
func (m *NoopMetrics) IncrementPresenceBroadcasts()  {}
func (m *NoopMetrics) IncrementInvalidFrames()       {}
func (m *NoopMetrics) IncrementPushFailures()        {}
func (m *NoopMetrics) IncrementDroppedMessages()     {}
