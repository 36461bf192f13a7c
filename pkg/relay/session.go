package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// session gorilla/websocket 会话，实现 Conn 与 Pinger。
// 读写各一协程；写协程是唯一向底层连接写入的地方。
type session struct {
	engine *Engine
	conn   *websocket.Conn
	cl     *client

	// 发送队列
	send chan []byte
	ping chan struct{}

	// 生命周期
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(e *Engine, conn *websocket.Conn) *session {
	s := &session{
		engine: e,
		conn:   conn,
		send:   make(chan []byte, e.config.SendQueueSize),
		ping:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.cl = &client{conn: s}
	return s
}

// run 驱动会话直到连接断开，随后解除注册绑定
func (s *session) run() {
	go s.writePump()
	s.readPump()

	s.Close()
	s.engine.detach(s.cl)
}

// readPump 读取入站帧并交给分发器。
// 读超时是对半开连接的兜底，正常情况下由心跳巡检先行驱逐。
func (s *session) readPump() {
	cfg := s.engine.config
	pongWait := 2 * cfg.HeartbeatInterval

	s.conn.SetReadLimit(cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		s.engine.pong(s.cl)
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.engine.log.Debug("session read ended", zap.Error(err))
			}
			return
		}
		s.engine.dispatch(s.cl, data)
	}
}

// writePump 串行写出队列中的载荷与探测帧
func (s *session) writePump() {
	cfg := s.engine.config
	defer s.conn.Close()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-s.ping:
			if err := s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send 非阻塞入队；队列满或连接已关闭时立即失败
func (s *session) Send(payload []byte) error {
	if s.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return ErrChannelFull
	}
}

// Ping 请求写协程发送一帧探测；已有待发探测时直接合并
func (s *session) Ping() error {
	if s.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case s.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close 幂等关闭
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		_ = s.conn.Close()
	})
	return nil
}
