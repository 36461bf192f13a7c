package relay

import (
	"context"

	"go.uber.org/zap"
)

// presenceBroadcaster 在注册表成员变化后重算在线视图并推送。
// 采用好友过滤视图：每个会话只收到自己好友中的在线子集，
// 不会泄露任意用户的在线状态。
type presenceBroadcaster struct {
	e *Engine
}

// rebroadcastLocked 推送在线好友列表到所有存活会话。
// 要求调用方持有引擎状态锁。
func (p *presenceBroadcaster) rebroadcastLocked(ctx context.Context) {
	e := p.e
	for uuid, h := range e.registry.conns {
		profile, err := e.stores.Profiles.Get(ctx, uuid)
		if err != nil {
			e.log.Warn("presence: profile lookup failed", zap.String("uuid", uuid), zap.Error(err))
			continue
		}

		users := make([]FriendRef, 0, len(profile.Friends))
		for _, f := range profile.Friends {
			if _, ok := e.registry.lookup(f.UUID); ok {
				f.Online = true
				users = append(users, f)
			}
		}

		if err := h.conn.Send(marshalOnlineUsers(users)); err != nil {
			e.metrics.IncrementDroppedMessages()
		}
	}
	e.metrics.IncrementPresenceBroadcasts()
}
