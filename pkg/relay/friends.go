package relay

import (
	"context"

	"go.uber.org/zap"
)

// friendGraph 好友关系状态机。对任一有序对 (A,B)：
// None -> PendingAtoB -> Friends，或 PendingAtoB -> None（被拒绝）。
// 全部方法要求调用方持有引擎状态锁。
type friendGraph struct {
	e *Engine
}

// requestLocked 发起好友申请。已是好友或申请已存在时空转（幂等）。
// 接收方离线时，待处理条目本身就是持久记录，下次登录随 syncData 浮现。
func (g *friendGraph) requestLocked(ctx context.Context, from, to string) error {
	e := g.e

	if from == to {
		e.log.Debug("friend request to self ignored", zap.String("uuid", from))
		return nil
	}

	fromP, err := e.stores.Profiles.Get(ctx, from)
	if err != nil {
		e.log.Warn("friend request dropped: unknown requester", zap.String("from", from), zap.Error(err))
		return ErrUnknownIdentity
	}
	toP, err := e.stores.Profiles.Get(ctx, to)
	if err != nil {
		e.log.Warn("friend request dropped: unknown target", zap.String("to", to), zap.Error(err))
		return ErrUnknownIdentity
	}

	// 已是好友或重复申请：吸收，无副作用
	if toP.HasFriend(from) || toP.HasPending(from) {
		return nil
	}

	toP.Pending = append(toP.Pending, from)
	if err := e.stores.Profiles.Put(ctx, toP); err != nil {
		return err
	}

	if h, ok := e.registry.lookup(to); ok {
		if err := h.conn.Send(marshalFriendRequest(fromP.Ref())); err != nil {
			e.metrics.IncrementDroppedMessages()
		}
	}
	return nil
}

// acceptLocked 接受好友申请。双向移除待处理条目（同时互相申请时
// 两条都会存在，第一次接受即折叠为一段好友关系），对称地写入好友集合。
// 原申请方收到 friendAccepted，接受方收到 friendAdded。
func (g *friendGraph) acceptLocked(ctx context.Context, responder, requester string) error {
	return g.resolveLocked(ctx, responder, requester, true)
}

// rejectLocked 拒绝好友申请。移除待处理条目，仅通知原申请方。
func (g *friendGraph) rejectLocked(ctx context.Context, responder, requester string) error {
	return g.resolveLocked(ctx, responder, requester, false)
}

func (g *friendGraph) resolveLocked(ctx context.Context, responder, requester string, accepted bool) error {
	e := g.e

	if responder == requester {
		return nil
	}

	respP, err := e.stores.Profiles.Get(ctx, responder)
	if err != nil {
		e.log.Warn("friend resolution dropped: unknown responder", zap.String("uuid", responder), zap.Error(err))
		return ErrUnknownIdentity
	}
	reqP, err := e.stores.Profiles.Get(ctx, requester)
	if err != nil {
		e.log.Warn("friend resolution dropped: unknown requester", zap.String("uuid", requester), zap.Error(err))
		return ErrUnknownIdentity
	}

	// 双向清理待处理条目：同时互相申请时第二条被静默丢弃
	respP.RemovePending(requester)
	reqP.RemovePending(responder)

	if accepted {
		// 对称不变式：两边同时写入，且仅在缺席时写入
		respP.AddFriend(reqP.Ref())
		reqP.AddFriend(respP.Ref())
	}

	if err := e.stores.Profiles.Put(ctx, respP); err != nil {
		return err
	}
	if err := e.stores.Profiles.Put(ctx, reqP); err != nil {
		return err
	}

	if h, ok := e.registry.lookup(requester); ok {
		notice := noticeFriendRejected
		if accepted {
			notice = noticeFriendAccepted
		}
		if err := h.conn.Send(marshalFriendNotice(notice, respP.Ref())); err != nil {
			e.metrics.IncrementDroppedMessages()
		}
	}
	if accepted {
		if h, ok := e.registry.lookup(responder); ok {
			if err := h.conn.Send(marshalFriendNotice(noticeFriendAdded, reqP.Ref())); err != nil {
				e.metrics.IncrementDroppedMessages()
			}
		}
	}
	return nil
}
