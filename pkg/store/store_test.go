package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokmz/scchat/pkg/relay"
)

// profileQueueStore 档案与队列的组合视角，让两种后端共用同一组用例
type profileQueueStore interface {
	relay.ProfileStore
	relay.MessageStore
	GetSubscription(ctx context.Context, uuid string) (json.RawMessage, error)
	PutSubscription(ctx context.Context, uuid string, sub json.RawMessage) error
}

func runStoreSuite(t *testing.T, s profileQueueStore) {
	ctx := context.Background()

	t.Run("未知档案返回 ErrNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, relay.ErrNotFound)
	})

	t.Run("档案写入与读取", func(t *testing.T) {
		p := &relay.Profile{
			UUID:   "alice",
			Name:   "Alice",
			Image:  "images/alice.png",
			Online: true,
			Friends: []relay.FriendRef{
				{UUID: "bob", Name: "Bob", Image: "images/bob.png"},
			},
			Pending: []string{"carol"},
		}
		require.NoError(t, s.Put(ctx, p))

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "Alice", got.Name)
		require.True(t, got.Online)
		require.Len(t, got.Friends, 1)
		require.Equal(t, "bob", got.Friends[0].UUID)
		require.Equal(t, []string{"carol"}, got.Pending)
	})

	t.Run("档案更新覆盖旧值", func(t *testing.T) {
		p, err := s.Get(ctx, "alice")
		require.NoError(t, err)

		p.Online = false
		p.Pending = []string{}
		require.NoError(t, s.Put(ctx, p))

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.False(t, got.Online)
		require.Empty(t, got.Pending)
	})

	t.Run("队列保持入队顺序", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			msg := &relay.Message{
				ID:     fmt.Sprintf("m%d", i),
				From:   "alice",
				To:     "bob",
				Text:   fmt.Sprintf("hello %d", i),
				SentAt: int64(1000 + i),
			}
			require.NoError(t, s.Enqueue(ctx, "bob", msg))
		}

		msgs, err := s.Drain(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		for i, msg := range msgs {
			require.Equal(t, fmt.Sprintf("m%d", i), msg.ID)
		}
	})

	t.Run("Drain 清空队列", func(t *testing.T) {
		msgs, err := s.Drain(ctx, "bob")
		require.NoError(t, err)
		require.Empty(t, msgs)
	})

	t.Run("队列按接收方隔离", func(t *testing.T) {
		require.NoError(t, s.Enqueue(ctx, "bob", &relay.Message{ID: "for-bob", From: "alice", To: "bob"}))
		require.NoError(t, s.Enqueue(ctx, "carol", &relay.Message{ID: "for-carol", From: "alice", To: "carol"}))

		msgs, err := s.Drain(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, "for-bob", msgs[0].ID)

		msgs, err = s.Drain(ctx, "carol")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, "for-carol", msgs[0].ID)
	})

	t.Run("推送订阅读写", func(t *testing.T) {
		_, err := s.GetSubscription(ctx, "alice")
		require.ErrorIs(t, err, relay.ErrNotFound)

		sub := json.RawMessage(`{"endpoint":"https://push.example.com/x","keys":{"auth":"a","p256dh":"b"}}`)
		require.NoError(t, s.PutSubscription(ctx, "alice", sub))

		got, err := s.GetSubscription(ctx, "alice")
		require.NoError(t, err)
		require.JSONEq(t, string(sub), string(got))
	})
}

func TestMemory(t *testing.T) {
	runStoreSuite(t, NewMemory())
}

func TestMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := &relay.Profile{UUID: "u", Name: "before", Friends: []relay.FriendRef{{UUID: "f"}}}
	require.NoError(t, m.Put(ctx, p))

	// 写入后修改原对象不应穿透存储
	p.Name = "after"
	p.Friends[0].UUID = "other"

	got, err := m.Get(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, "before", got.Name)
	require.Equal(t, "f", got.Friends[0].UUID)

	// 读出后修改返回值不应穿透存储
	got.Friends[0].UUID = "mutated"
	again, err := m.Get(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, "f", again.Friends[0].UUID)
}

func TestSQLite(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "scchat.db"))
	require.NoError(t, err)
	defer db.Close()

	runStoreSuite(t, db)
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "scchat.db")

	db, err := OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, &relay.Profile{UUID: "alice", Name: "Alice"}))
	require.NoError(t, db.Enqueue(ctx, "alice", &relay.Message{ID: "m1", From: "bob", To: "alice"}))
	require.NoError(t, db.Close())

	// 重新打开后数据仍在
	db, err = OpenSQLite(dsn)
	require.NoError(t, err)
	defer db.Close()

	p, err := db.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", p.Name)

	msgs, err := db.Drain(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].ID)
}

func TestOpenSQLiteEmptyDSN(t *testing.T) {
	_, err := OpenSQLite("")
	require.Error(t, err)
}

func TestNewRedisQueueValidation(t *testing.T) {
	_, err := NewRedisQueue(nil)
	require.Error(t, err)

	_, err = NewRedisQueue(&RedisConfig{})
	require.Error(t, err)

	q, err := NewRedisQueue(&RedisConfig{Addr: "localhost:6379"})
	require.NoError(t, err)
	require.NotNil(t, q)
	_ = q.Close()
}
