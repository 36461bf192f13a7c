package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/scchat/pkg/relay"
)

// RedisQueue Redis 离线队列：每个接收方一个 LIST，RPUSH 入队保序。
// 只承担队列角色，档案与订阅仍由其他存储提供。
type RedisQueue struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // 默认 "scchat:queue:"
}

// NewRedisQueue 创建 Redis 离线队列
func NewRedisQueue(cfg *RedisConfig) (*RedisQueue, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("store: redis addr is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "scchat:queue:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisQueue{client: client, keyPrefix: prefix}, nil
}

// NewRedisQueueWithClient 复用已有客户端创建队列，供测试与连接共享使用
func NewRedisQueueWithClient(client redis.UniversalClient, keyPrefix string) *RedisQueue {
	if keyPrefix == "" {
		keyPrefix = "scchat:queue:"
	}
	return &RedisQueue{client: client, keyPrefix: keyPrefix}
}

func (q *RedisQueue) key(to string) string {
	return q.keyPrefix + to
}

// Enqueue 追加离线消息
func (q *RedisQueue) Enqueue(ctx context.Context, to string, msg *relay.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("store: encode message: %w", err)
	}
	if err := q.client.RPush(ctx, q.key(to), payload).Err(); err != nil {
		return fmt.Errorf("store: enqueue message: %w", err)
	}
	return nil
}

// Drain 原子地取出并清空队列。LRANGE 与 DEL 打包进事务管道，
// 两条命令之间不可能插入新的入队。
func (q *RedisQueue) Drain(ctx context.Context, to string) ([]*relay.Message, error) {
	key := q.key(to)

	pipe := q.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store: drain queue: %w", err)
	}

	raw := rangeCmd.Val()
	if len(raw) == 0 {
		return nil, nil
	}

	msgs := make([]*relay.Message, 0, len(raw))
	for _, item := range raw {
		var msg relay.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("store: decode message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

// Close 关闭底层客户端
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
