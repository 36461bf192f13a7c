package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tokmz/scchat/pkg/relay"
)

// Memory 进程内存储：同时实现档案、离线队列与推送订阅三个协作方。
// 所有读写返回深拷贝，调用方的后续修改不会穿透存储。
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]*relay.Profile
	queues   map[string][]*relay.Message
	subs     map[string]json.RawMessage
}

// NewMemory 创建进程内存储
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]*relay.Profile),
		queues:   make(map[string][]*relay.Message),
		subs:     make(map[string]json.RawMessage),
	}
}

// Get 查询档案
func (m *Memory) Get(ctx context.Context, uuid string) (*relay.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", relay.ErrNotFound, uuid)
	}
	return p.Clone(), nil
}

// Put 写入档案
func (m *Memory) Put(ctx context.Context, profile *relay.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UUID] = profile.Clone()
	return nil
}

// Enqueue 追加离线消息
func (m *Memory) Enqueue(ctx context.Context, to string, msg *relay.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *msg
	m.queues[to] = append(m.queues[to], &cp)
	return nil
}

// Drain 原子地取出并清空队列，按入队顺序返回
func (m *Memory) Drain(ctx context.Context, to string) ([]*relay.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.queues[to]
	delete(m.queues, to)
	return msgs, nil
}

// GetSubscription 查询推送订阅
func (m *Memory) GetSubscription(ctx context.Context, uuid string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", relay.ErrNotFound, uuid)
	}
	out := make(json.RawMessage, len(sub))
	copy(out, sub)
	return out, nil
}

// PutSubscription 写入推送订阅
func (m *Memory) PutSubscription(ctx context.Context, uuid string, sub json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(json.RawMessage, len(sub))
	copy(cp, sub)
	m.subs[uuid] = cp
	return nil
}

// Subscriptions 以 relay.SubscriptionStore 视角暴露订阅存储
func (m *Memory) Subscriptions() relay.SubscriptionStore {
	return memorySubs{m}
}

type memorySubs struct{ m *Memory }

func (s memorySubs) Get(ctx context.Context, uuid string) (json.RawMessage, error) {
	return s.m.GetSubscription(ctx, uuid)
}

func (s memorySubs) Put(ctx context.Context, uuid string, sub json.RawMessage) error {
	return s.m.PutSubscription(ctx, uuid, sub)
}
