package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/scchat/pkg/logger"
)

// DefaultAvatar 登录档案未携带头像时使用的默认头像引用
const DefaultAvatar = "images/avatar.png"

// Engine 在线状态与消息中继引擎：连接注册表、心跳活性检测、
// 带离线队列的消息路由与好友关系状态机的汇聚点。
//
// 并发契约：触及同一身份可变状态的操作彼此原子——由单一状态锁
// 串行化所有注册表、档案与离线队列的变更。socket 读写本身是
// 异步非阻塞的，临界区内的发送从不阻塞。
type Engine struct {
	config  *Config
	log     logger.Logger
	metrics Metrics

	stores   Stores
	notifier Notifier

	// mu 状态锁：注册表、档案、离线队列的所有变更经由此锁串行化
	mu       sync.Mutex
	registry *registry
	sessions map[*session]struct{}

	router     *messageRouter
	friends    *friendGraph
	presence   *presenceBroadcaster
	dispatcher *dispatcher
	heartbeat  *heartbeatMonitor

	upgrader *websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New 创建引擎。Profiles 与 Queue 是必需协作方；
// Subscriptions 与 Push 可选（缺席时不产生推送提示）。
func New(stores Stores, opts ...Option) (*Engine, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if stores.Profiles == nil {
		return nil, fmt.Errorf("%w: profile store is required", ErrInvalidConfig)
	}
	if stores.Queue == nil {
		return nil, fmt.Errorf("%w: message store is required", ErrInvalidConfig)
	}

	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	var notifier Notifier = stores.Push
	if notifier == nil {
		notifier = noopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		config:   config,
		log:      log,
		metrics:  metrics,
		stores:   stores,
		notifier: notifier,
		registry: newRegistry(config.MaxConnections),
		sessions: make(map[*session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.router = &messageRouter{e: e}
	e.friends = &friendGraph{e: e}
	e.presence = &presenceBroadcaster{e: e}
	e.dispatcher = newDispatcher(log, metrics)
	e.heartbeat = &heartbeatMonitor{e: e, interval: config.HeartbeatInterval}
	e.upgrader = config.newUpgrader()

	e.setupHandlers()

	return e, nil
}

// Run 启动心跳巡检
func (e *Engine) Run() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.heartbeat.run(e.ctx)
	}()
	return nil
}

// Shutdown 优雅关闭：停止心跳，并发关闭所有会话，等待协程退出
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closed.Store(true)
	e.cancel()

	e.mu.Lock()
	open := make([]*session, 0, len(e.sessions))
	for s := range e.sessions {
		open = append(open, s)
	}
	e.mu.Unlock()

	var closeWg sync.WaitGroup
	for _, s := range open {
		closeWg.Add(1)
		go func(s *session) {
			defer closeWg.Done()
			_ = s.Close()
		}(s)
	}
	closeWg.Wait()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleUpgrade 升级 HTTP 连接为 WebSocket 并接入会话
func (e *Engine) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	s := newSession(e, conn)

	e.mu.Lock()
	e.sessions[s] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.forget(s)
		s.run()
	}()

	return nil
}

// forget 从会话跟踪集合移除
func (e *Engine) forget(s *session) {
	e.mu.Lock()
	delete(e.sessions, s)
	e.mu.Unlock()
}

// dispatch 路由一帧入站载荷
func (e *Engine) dispatch(cl *client, raw []byte) {
	e.dispatcher.dispatch(cl, raw)
}

// pong 传输层应答回调：重新置位存活标记
func (e *Engine) pong(cl *client) {
	if cl.uuid == "" {
		return
	}
	e.mu.Lock()
	if h, ok := e.registry.lookup(cl.uuid); ok && h.conn == cl.conn {
		h.alive.Store(true)
		h.lastPong.Store(time.Now().Unix())
	}
	e.mu.Unlock()
}

// detach 连接断开回调：解除绑定并重播在线列表。
// 绑定已被新登录顶替时不得触碰新绑定（幂等）。
func (e *Engine) detach(cl *client) {
	if cl.uuid == "" {
		return
	}
	ctx := e.ctx

	e.mu.Lock()
	h, ok := e.registry.lookup(cl.uuid)
	if !ok || h.conn != cl.conn {
		e.mu.Unlock()
		return
	}
	e.registry.unregister(cl.uuid)
	e.metrics.DecrementConnections()
	e.metrics.SetConnectionCount(e.registry.count())
	e.markOfflineLocked(ctx, cl.uuid)
	e.presence.rebroadcastLocked(ctx)
	e.mu.Unlock()

	e.log.Info("client disconnected", zap.String("uuid", cl.uuid))
}

// evictLocked 心跳驱逐：解除绑定、标记离线、重播在线列表。
// 句柄已被顶替时空转。要求调用方持有状态锁。
func (e *Engine) evictLocked(ctx context.Context, h *handle) {
	cur, ok := e.registry.lookup(h.uuid)
	if !ok || cur != h {
		return
	}
	e.registry.unregister(h.uuid)
	e.metrics.DecrementConnections()
	e.metrics.SetConnectionCount(e.registry.count())
	e.metrics.IncrementEvictions()
	e.markOfflineLocked(ctx, h.uuid)
	e.presence.rebroadcastLocked(ctx)

	e.log.Info("connection evicted: missed heartbeat", zap.String("uuid", h.uuid))
}

// markOfflineLocked 软下线档案
func (e *Engine) markOfflineLocked(ctx context.Context, uuid string) {
	p, err := e.stores.Profiles.Get(ctx, uuid)
	if err != nil {
		return
	}
	p.Online = false
	if err := e.stores.Profiles.Put(ctx, p); err != nil {
		e.log.Error("profile offline mark failed", zap.String("uuid", uuid), zap.Error(err))
	}
}

// setupHandlers 注册入站帧处理器
func (e *Engine) setupHandlers() {
	handleTyped(e.dispatcher, frameLogin, e.handleLogin)
	handleTyped(e.dispatcher, frameRegister, e.handleLogin)
	handleTyped(e.dispatcher, frameSync, e.handleSync)
	handleTyped(e.dispatcher, frameChat, e.handleChat)
	handleTyped(e.dispatcher, frameFriendRequest, e.handleFriendRequest)
	handleTyped(e.dispatcher, frameFriendAccept, e.handleFriendAccept)
	handleTyped(e.dispatcher, frameFriendReject, e.handleFriendReject)
	handleTyped(e.dispatcher, framePushSubscribe, e.handlePushSubscribe)
}

// handleLogin 登录/注册：幂等。已知身份重新登录只刷新连接绑定与
// 在线状态，不会产生重复档案。
func (e *Engine) handleLogin(cl *client, f *loginFrame) {
	p := f.Profile
	if p.UUID == "" {
		e.log.Debug("login dropped: empty uuid")
		return
	}
	ctx := e.ctx

	e.mu.Lock()

	// 同一连接改换身份：先解除旧绑定
	if cl.uuid != "" && cl.uuid != p.UUID {
		if h, ok := e.registry.lookup(cl.uuid); ok && h.conn == cl.conn {
			e.registry.unregister(cl.uuid)
			e.metrics.DecrementConnections()
			e.markOfflineLocked(ctx, cl.uuid)
		}
	}

	profile, err := e.stores.Profiles.Get(ctx, p.UUID)
	switch {
	case errors.Is(err, ErrNotFound):
		profile = &Profile{
			UUID:    p.UUID,
			Name:    p.Name,
			Image:   p.Image,
			Friends: []FriendRef{},
			Pending: []string{},
		}
		if profile.Image == "" {
			profile.Image = DefaultAvatar
		}
	case err != nil:
		e.mu.Unlock()
		e.log.Error("login failed: profile load", zap.String("uuid", p.UUID), zap.Error(err))
		return
	}

	profile.Online = true
	if err := e.stores.Profiles.Put(ctx, profile); err != nil {
		e.mu.Unlock()
		e.log.Error("login failed: profile save", zap.String("uuid", p.UUID), zap.Error(err))
		return
	}

	// 顶替而非合并：同一 uuid 的新登录取代旧句柄
	old, err := e.registry.register(p.UUID, cl.conn)
	if err != nil {
		e.mu.Unlock()
		e.log.Warn("login rejected", zap.String("uuid", p.UUID), zap.Error(err))
		_ = cl.conn.Close()
		return
	}
	cl.uuid = p.UUID
	if old == nil {
		e.metrics.IncrementConnections()
	}
	e.metrics.SetConnectionCount(e.registry.count())

	if err := cl.conn.Send(marshalLoginSuccess(profile)); err != nil {
		e.metrics.IncrementDroppedMessages()
	}

	// 积压消息与待处理申请随登录浮现；清空队列与投递在同一临界区完成
	msgs := e.router.drainLocked(ctx, p.UUID)
	if err := cl.conn.Send(marshalSyncData(msgs, profile.Pending)); err != nil {
		e.metrics.IncrementDroppedMessages()
	}

	e.presence.rebroadcastLocked(ctx)
	e.mu.Unlock()

	if old != nil && old.conn != cl.conn {
		_ = old.conn.Close()
	}

	e.log.Info("client logged in", zap.String("uuid", p.UUID), zap.String("name", profile.Name))
}

// handleSync 重新请求积压消息与待处理好友申请
func (e *Engine) handleSync(cl *client, f *syncFrame) {
	if f.UUID == "" {
		return
	}
	ctx := e.ctx

	e.mu.Lock()
	defer e.mu.Unlock()

	profile, err := e.stores.Profiles.Get(ctx, f.UUID)
	if err != nil {
		e.log.Debug("sync ignored: unknown identity", zap.String("uuid", f.UUID))
		return
	}

	msgs := e.router.drainLocked(ctx, f.UUID)
	if err := cl.conn.Send(marshalSyncData(msgs, profile.Pending)); err != nil {
		e.metrics.IncrementDroppedMessages()
	}
}

func (e *Engine) handleChat(cl *client, f *chatFrame) {
	_, _ = e.Send(e.ctx, f.From, f.To, f.Text)
}

func (e *Engine) handleFriendRequest(cl *client, f *friendFrame) {
	_ = e.RequestFriend(e.ctx, f.FromProfile.UUID, f.To)
}

func (e *Engine) handleFriendAccept(cl *client, f *friendFrame) {
	_ = e.AcceptFriend(e.ctx, f.FromProfile.UUID, f.To)
}

func (e *Engine) handleFriendReject(cl *client, f *friendFrame) {
	_ = e.RejectFriend(e.ctx, f.FromProfile.UUID, f.To)
}

// handlePushSubscribe 转存推送订阅；未登录连接的订阅被忽略
func (e *Engine) handlePushSubscribe(cl *client, f *pushSubscribeFrame) {
	if cl.uuid == "" || len(f.Subscription) == 0 || e.stores.Subscriptions == nil {
		return
	}
	if err := e.stores.Subscriptions.Put(e.ctx, cl.uuid, f.Subscription); err != nil {
		e.log.Warn("push subscription save failed", zap.String("uuid", cl.uuid), zap.Error(err))
	}
}

// Send 路由一次发送请求：在线直投、离线入队加推送提示、
// 发送方回显。任一身份未知时空转并返回 ErrUnknownIdentity。
func (e *Engine) Send(ctx context.Context, from, to, text string) (*Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.router.sendLocked(ctx, from, to, text)
}

// RequestFriend 发起好友申请（对重试幂等）
func (e *Engine) RequestFriend(ctx context.Context, from, to string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.friends.requestLocked(ctx, from, to)
}

// AcceptFriend 接受好友申请，responder 是接受方
func (e *Engine) AcceptFriend(ctx context.Context, responder, requester string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.friends.acceptLocked(ctx, responder, requester)
}

// RejectFriend 拒绝好友申请，responder 是拒绝方
func (e *Engine) RejectFriend(ctx context.Context, responder, requester string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.friends.rejectLocked(ctx, responder, requester)
}

// Broadcast 向所有档案满足谓词的存活连接发送同一载荷，
// 返回实际送达的连接数。pred 为 nil 时发给所有存活连接。
func (e *Engine) Broadcast(ctx context.Context, pred func(*Profile) bool, payload []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.registry.broadcast(func(uuid string) bool {
		if pred == nil {
			return true
		}
		p, err := e.stores.Profiles.Get(ctx, uuid)
		if err != nil {
			return false
		}
		return pred(p)
	}, payload)
}

// ClientCount 当前已登录的连接数
func (e *Engine) ClientCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.count()
}
