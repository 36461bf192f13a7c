package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// heartbeatMonitor 周期性巡检所有注册连接：上个周期未应答的连接
// 被驱逐（级联触发在线列表重播），其余清除存活标记并发送探测。
// 应答由传输层的 pong 回调重新置位存活标记。
// 这是针对从不主动报告关闭的半开 socket 的兜底，单靠 close 回调覆盖不到。
type heartbeatMonitor struct {
	e        *Engine
	interval time.Duration
}

// run 以固定周期巡检，直到上下文取消
func (m *heartbeatMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep 一轮巡检。驱逐只解除连接绑定，绝不触碰已入队的离线消息。
func (m *heartbeatMonitor) sweep(ctx context.Context) {
	e := m.e

	e.mu.Lock()
	var evicted []*handle
	var probes []Pinger
	for _, h := range e.registry.snapshot() {
		if !h.alive.Load() {
			evicted = append(evicted, h)
			continue
		}
		h.alive.Store(false)
		if p, ok := h.conn.(Pinger); ok {
			probes = append(probes, p)
		}
	}
	for _, h := range evicted {
		e.evictLocked(ctx, h)
	}
	e.mu.Unlock()

	// 关闭与探测都在锁外进行
	for _, h := range evicted {
		_ = h.conn.Close()
	}
	for _, p := range probes {
		_ = p.Ping()
	}

	if len(evicted) > 0 {
		e.log.Info("heartbeat sweep evicted connections", zap.Int("count", len(evicted)))
	}
}
