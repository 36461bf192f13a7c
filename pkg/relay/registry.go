package relay

import (
	"sync/atomic"
	"time"
)

// handle 一个 uuid 与其存活传输句柄的绑定
type handle struct {
	uuid     string
	conn     Conn
	alive    atomic.Bool  // 上个探测周期内是否收到应答
	lastPong atomic.Int64 // 最近一次应答时间（Unix 秒）
}

// registry 连接注册表：uuid 到存活传输句柄的权威映射，
// 是"此用户当前是否可达"的唯一事实来源。
// 所有方法都要求调用方持有引擎状态锁。
type registry struct {
	conns    map[string]*handle
	maxConns int
}

func newRegistry(maxConns int) *registry {
	return &registry{
		conns:    make(map[string]*handle),
		maxConns: maxConns,
	}
}

// register 绑定 uuid 与句柄。已有绑定时先移除并返回旧句柄，
// 由调用方负责关闭（顶替语义，后写者胜）。
func (r *registry) register(uuid string, conn Conn) (old *handle, err error) {
	if prev, ok := r.conns[uuid]; ok {
		delete(r.conns, uuid)
		old = prev
	} else if len(r.conns) >= r.maxConns {
		return nil, ErrTooManyConnections
	}

	h := &handle{uuid: uuid, conn: conn}
	h.alive.Store(true)
	h.lastPong.Store(time.Now().Unix())
	r.conns[uuid] = h
	return old, nil
}

// unregister 解除绑定并返回旧句柄；不存在时返回 nil（幂等）
func (r *registry) unregister(uuid string) *handle {
	h, ok := r.conns[uuid]
	if !ok {
		return nil
	}
	delete(r.conns, uuid)
	return h
}

// lookup 查找存活句柄
func (r *registry) lookup(uuid string) (*handle, bool) {
	h, ok := r.conns[uuid]
	return h, ok
}

// count 当前绑定数
func (r *registry) count() int {
	return len(r.conns)
}

// snapshot 句柄快照，供心跳巡检在锁外关闭连接
func (r *registry) snapshot() []*handle {
	out := make([]*handle, 0, len(r.conns))
	for _, h := range r.conns {
		out = append(out, h)
	}
	return out
}

// broadcast 向所有满足谓词的句柄发送同一载荷。
// 发送是非阻塞的，失败的句柄被跳过。返回实际送达的句柄数。
func (r *registry) broadcast(pred func(uuid string) bool, payload []byte) int {
	sent := 0
	for uuid, h := range r.conns {
		if pred != nil && !pred(uuid) {
			continue
		}
		if err := h.conn.Send(payload); err == nil {
			sent++
		}
	}
	return sent
}
