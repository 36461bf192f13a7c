package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// fakeConn 测试桩传输句柄，记录所有发出的帧
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	pings    int
	closed   bool
	failSend bool
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failSend {
		return ErrConnectionClosed
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	c.pings++
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// notices 解出全部已发帧的类型序列
func (c *fakeConn) notices(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.frames))
	for _, raw := range c.frames {
		var head envelopeHead
		if err := json.Unmarshal(raw, &head); err != nil {
			t.Fatalf("malformed outbound frame: %s", raw)
		}
		out = append(out, head.Type)
	}
	return out
}

// lastOf 解出最后一帧指定类型的通知到 dst，返回是否找到
func (c *fakeConn) lastOf(t *testing.T, noticeType string, dst any) bool {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.frames) - 1; i >= 0; i-- {
		var head envelopeHead
		if err := json.Unmarshal(c.frames[i], &head); err != nil {
			t.Fatalf("malformed outbound frame: %s", c.frames[i])
		}
		if head.Type != noticeType {
			continue
		}
		if err := json.Unmarshal(c.frames[i], dst); err != nil {
			t.Fatalf("decode %s notice: %v", noticeType, err)
		}
		return true
	}
	return false
}

func (c *fakeConn) countOf(t *testing.T, noticeType string) int {
	n := 0
	for _, typ := range c.notices(t) {
		if typ == noticeType {
			n++
		}
	}
	return n
}

// memProfiles 进程内档案存储桩
type memProfiles struct {
	mu sync.Mutex
	m  map[string]*Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{m: make(map[string]*Profile)}
}

func (s *memProfiles) Get(ctx context.Context, uuid string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	return p.Clone(), nil
}

func (s *memProfiles) Put(ctx context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[profile.UUID] = profile.Clone()
	return nil
}

// memQueue 进程内离线队列桩
type memQueue struct {
	mu sync.Mutex
	q  map[string][]*Message
}

func newMemQueue() *memQueue {
	return &memQueue{q: make(map[string][]*Message)}
}

func (s *memQueue) Enqueue(ctx context.Context, to string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.q[to] = append(s.q[to], &cp)
	return nil
}

func (s *memQueue) Drain(ctx context.Context, to string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.q[to]
	delete(s.q, to)
	return msgs, nil
}

func (s *memQueue) size(to string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q[to])
}

// memSubs 进程内订阅存储桩
type memSubs struct {
	mu sync.Mutex
	m  map[string]json.RawMessage
}

func newMemSubs() *memSubs {
	return &memSubs{m: make(map[string]json.RawMessage)}
}

func (s *memSubs) Get(ctx context.Context, uuid string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.m[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	return sub, nil
}

func (s *memSubs) Put(ctx context.Context, uuid string, sub json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[uuid] = sub
	return nil
}

// countingMetrics 计数监控桩
type countingMetrics struct {
	NoopMetrics
	mu         sync.Mutex
	delivered  int
	queued     int
	drained    int
	evictions  int
	broadcasts int
	invalid    int
}

func (m *countingMetrics) IncrementDelivered() {
	m.mu.Lock()
	m.delivered++
	m.mu.Unlock()
}

func (m *countingMetrics) IncrementQueued() {
	m.mu.Lock()
	m.queued++
	m.mu.Unlock()
}

func (m *countingMetrics) IncrementDrained(count int) {
	m.mu.Lock()
	m.drained += count
	m.mu.Unlock()
}

func (m *countingMetrics) IncrementEvictions() {
	m.mu.Lock()
	m.evictions++
	m.mu.Unlock()
}

func (m *countingMetrics) IncrementPresenceBroadcasts() {
	m.mu.Lock()
	m.broadcasts++
	m.mu.Unlock()
}

func (m *countingMetrics) IncrementInvalidFrames() {
	m.mu.Lock()
	m.invalid++
	m.mu.Unlock()
}

func (m *countingMetrics) snapshot() (delivered, queued, drained, evictions, broadcasts, invalid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delivered, m.queued, m.drained, m.evictions, m.broadcasts, m.invalid
}

// testEngine 测试用引擎与其协作方
type testEngine struct {
	*Engine
	profiles *memProfiles
	queue    *memQueue
	subs     *memSubs
	metrics  *countingMetrics
}

func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()

	te := &testEngine{
		profiles: newMemProfiles(),
		queue:    newMemQueue(),
		subs:     newMemSubs(),
		metrics:  &countingMetrics{},
	}

	opts = append([]Option{WithMetrics(te.metrics)}, opts...)
	e, err := New(Stores{
		Profiles:      te.profiles,
		Queue:         te.queue,
		Subscriptions: te.subs,
	}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	te.Engine = e
	return te
}

// login 以桩连接登录一个身份
func (te *testEngine) login(uuid, name string) (*fakeConn, *client) {
	conn := &fakeConn{}
	cl := &client{conn: conn}
	te.handleLogin(cl, &loginFrame{Profile: profilePayload{UUID: uuid, Name: name}})
	return conn, cl
}

// befriend 直接建立好友关系
func (te *testEngine) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	if err := te.RequestFriend(ctx, a, b); err != nil {
		t.Fatalf("RequestFriend failed: %v", err)
	}
	if err := te.AcceptFriend(ctx, b, a); err != nil {
		t.Fatalf("AcceptFriend failed: %v", err)
	}
}

func (te *testEngine) profile(t *testing.T, uuid string) *Profile {
	t.Helper()
	p, err := te.profiles.Get(context.Background(), uuid)
	if err != nil {
		t.Fatalf("profile %s missing: %v", uuid, err)
	}
	return p
}
