package relay

import (
	"context"
	"encoding/json"
)

// ProfileStore 用户档案存储协作方。
// 未知 uuid 返回 ErrNotFound（可包装）。
type ProfileStore interface {
	Get(ctx context.Context, uuid string) (*Profile, error)
	Put(ctx context.Context, profile *Profile) error
}

// MessageStore 离线队列协作方。每个接收方一条 FIFO 队列。
// Drain 必须原子地取出并清空队列，按入队顺序返回。
type MessageStore interface {
	Enqueue(ctx context.Context, to string, msg *Message) error
	Drain(ctx context.Context, to string) ([]*Message, error)
}

// SubscriptionStore 推送订阅存储协作方。订阅内容对引擎不透明。
type SubscriptionStore interface {
	Get(ctx context.Context, uuid string) (json.RawMessage, error)
	Put(ctx context.Context, uuid string, sub json.RawMessage) error
}

// Notifier 推送通知协作方。失败只记录日志，不会同步重试，
// 也绝不回传给消息发送方。
type Notifier interface {
	Notify(ctx context.Context, sub json.RawMessage, title, body string) error
}

// Stores 引擎依赖的存储协作方集合
type Stores struct {
	Profiles      ProfileStore
	Queue         MessageStore
	Subscriptions SubscriptionStore // 可选；为 nil 时不产生推送提示
	Push          Notifier          // 可选；为 nil 时使用空实现
}

// noopNotifier 空推送实现
type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, sub json.RawMessage, title, body string) error {
	return nil
}
