package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// messageRouter 点对点消息路由：在线直投、离线入队并触发推送提示、
// 无论哪个分支都向发送方回显确认。
type messageRouter struct {
	e *Engine
}

// sendLocked 路由一次发送请求。要求调用方持有引擎状态锁。
// 任一身份未知时整个操作空转（仅记录日志，不向发送方回报错误）。
func (r *messageRouter) sendLocked(ctx context.Context, from, to, text string) (*Message, error) {
	e := r.e

	if from == to {
		e.log.Debug("chat to self ignored", zap.String("uuid", from))
		return nil, nil
	}

	fromP, err := e.stores.Profiles.Get(ctx, from)
	if err != nil {
		e.log.Warn("chat dropped: unknown sender", zap.String("from", from), zap.Error(err))
		return nil, ErrUnknownIdentity
	}
	if _, err := e.stores.Profiles.Get(ctx, to); err != nil {
		e.log.Warn("chat dropped: unknown recipient", zap.String("to", to), zap.Error(err))
		return nil, ErrUnknownIdentity
	}

	msg := &Message{
		ID:     uuid.NewString(),
		From:   from,
		To:     to,
		Text:   text,
		SentAt: time.Now().UnixMilli(),
	}

	// 在线直投。对已关闭句柄的发送立即失败并落入离线分支。
	if h, ok := e.registry.lookup(to); ok {
		delivered := *msg
		delivered.Delivered = true
		if err := h.conn.Send(marshalChat(&delivered)); err == nil {
			msg.Delivered = true
			e.metrics.IncrementDelivered()
		}
	}

	if !msg.Delivered {
		if err := e.stores.Queue.Enqueue(ctx, to, msg); err != nil {
			e.log.Error("offline enqueue failed", zap.String("to", to), zap.Error(err))
		} else {
			e.metrics.IncrementQueued()
		}
		// 尽力而为的推送提示，失败只记日志，绝不传回发送方
		r.pushHint(to, fromP.Name, text)
	}

	// 回显给发送方的存活连接做本地确认。
	// 这是单次逻辑发送扇出为两次投递的唯一场景。
	if h, ok := e.registry.lookup(from); ok {
		if err := h.conn.Send(marshalChat(msg)); err != nil {
			e.metrics.IncrementDroppedMessages()
		}
	}

	return msg, nil
}

// pushHint 异步触发推送通知提示。订阅缺失与推送失败都不是错误。
func (r *messageRouter) pushHint(to, title, body string) {
	e := r.e
	if e.stores.Subscriptions == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sub, err := e.stores.Subscriptions.Get(ctx, to)
		if err != nil {
			return
		}
		if err := e.notifier.Notify(ctx, sub, title, body); err != nil {
			e.metrics.IncrementPushFailures()
			e.log.Warn("push notification failed", zap.String("to", to), zap.Error(err))
		}
	}()
}

// drainLocked 原子地取出并清空 uuid 的离线队列，按入队顺序返回，
// 每条标记为已投递。先清后发：队列清空与返回在同一临界区完成，
// 每次重连恰好执行一次。要求调用方持有引擎状态锁。
func (r *messageRouter) drainLocked(ctx context.Context, uuid string) []*Message {
	e := r.e

	msgs, err := e.stores.Queue.Drain(ctx, uuid)
	if err != nil {
		e.log.Error("offline drain failed", zap.String("uuid", uuid), zap.Error(err))
		return nil
	}
	for _, m := range msgs {
		m.Delivered = true
	}
	if len(msgs) > 0 {
		e.metrics.IncrementDrained(len(msgs))
	}
	return msgs
}
