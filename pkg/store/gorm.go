package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tokmz/scchat/pkg/relay"
)

// profileRecord 用户档案行。好友快照与待处理列表序列化为 JSON 存放。
type profileRecord struct {
	UUID    string `gorm:"primaryKey;size:64"`
	Name    string `gorm:"size:255"`
	Image   string `gorm:"size:512"`
	Online  bool
	Friends string
	Pending string
	Updated int64 `gorm:"autoUpdateTime:milli"`
}

func (profileRecord) TableName() string { return "profiles" }

// messageRecord 离线消息行。自增主键保证 Drain 的入队顺序。
type messageRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Recipient string `gorm:"index;size:64"`
	Payload   string
}

func (messageRecord) TableName() string { return "offline_messages" }

// subscriptionRecord 推送订阅行
type subscriptionRecord struct {
	UUID    string `gorm:"primaryKey;size:64"`
	Payload string
}

func (subscriptionRecord) TableName() string { return "push_subscriptions" }

// DB 持久化存储：同时实现档案、离线队列与推送订阅三个协作方
type DB struct {
	db *gorm.DB
}

// OpenSQLite 打开 SQLite 数据库并迁移表结构
func OpenSQLite(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if err := db.AutoMigrate(&profileRecord{}, &messageRecord{}, &subscriptionRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DB{db: db}, nil
}

// Get 查询档案
func (s *DB) Get(ctx context.Context, uuid string) (*relay.Profile, error) {
	var rec profileRecord
	err := s.db.WithContext(ctx).First(&rec, "uuid = ?", uuid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: profile %s", relay.ErrNotFound, uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load profile: %w", err)
	}

	p := &relay.Profile{
		UUID:    rec.UUID,
		Name:    rec.Name,
		Image:   rec.Image,
		Online:  rec.Online,
		Friends: []relay.FriendRef{},
		Pending: []string{},
	}
	if rec.Friends != "" {
		if err := json.Unmarshal([]byte(rec.Friends), &p.Friends); err != nil {
			return nil, fmt.Errorf("store: decode friends: %w", err)
		}
	}
	if rec.Pending != "" {
		if err := json.Unmarshal([]byte(rec.Pending), &p.Pending); err != nil {
			return nil, fmt.Errorf("store: decode pending: %w", err)
		}
	}
	return p, nil
}

// Put 写入档案（upsert）
func (s *DB) Put(ctx context.Context, profile *relay.Profile) error {
	friends, err := json.Marshal(profile.Friends)
	if err != nil {
		return fmt.Errorf("store: encode friends: %w", err)
	}
	pending, err := json.Marshal(profile.Pending)
	if err != nil {
		return fmt.Errorf("store: encode pending: %w", err)
	}

	rec := profileRecord{
		UUID:    profile.UUID,
		Name:    profile.Name,
		Image:   profile.Image,
		Online:  profile.Online,
		Friends: string(friends),
		Pending: string(pending),
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("store: save profile: %w", err)
	}
	return nil
}

// Enqueue 追加离线消息
func (s *DB) Enqueue(ctx context.Context, to string, msg *relay.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("store: encode message: %w", err)
	}
	rec := messageRecord{Recipient: to, Payload: string(payload)}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store: enqueue message: %w", err)
	}
	return nil
}

// Drain 事务内取出并清空队列，按入队顺序返回
func (s *DB) Drain(ctx context.Context, to string) ([]*relay.Message, error) {
	var msgs []*relay.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recs []messageRecord
		if err := tx.Where("recipient = ?", to).Order("id asc").Find(&recs).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}

		for _, rec := range recs {
			var msg relay.Message
			if err := json.Unmarshal([]byte(rec.Payload), &msg); err != nil {
				return fmt.Errorf("decode message %d: %w", rec.ID, err)
			}
			msgs = append(msgs, &msg)
		}

		return tx.Where("recipient = ?", to).Delete(&messageRecord{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: drain queue: %w", err)
	}
	return msgs, nil
}

// GetSubscription 查询推送订阅
func (s *DB) GetSubscription(ctx context.Context, uuid string) (json.RawMessage, error) {
	var rec subscriptionRecord
	err := s.db.WithContext(ctx).First(&rec, "uuid = ?", uuid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: subscription %s", relay.ErrNotFound, uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load subscription: %w", err)
	}
	return json.RawMessage(rec.Payload), nil
}

// PutSubscription 写入推送订阅（upsert）
func (s *DB) PutSubscription(ctx context.Context, uuid string, sub json.RawMessage) error {
	rec := subscriptionRecord{UUID: uuid, Payload: string(sub)}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("store: save subscription: %w", err)
	}
	return nil
}

// Subscriptions 以 relay.SubscriptionStore 视角暴露订阅存储
func (s *DB) Subscriptions() relay.SubscriptionStore {
	return dbSubs{s}
}

type dbSubs struct{ s *DB }

func (d dbSubs) Get(ctx context.Context, uuid string) (json.RawMessage, error) {
	return d.s.GetSubscription(ctx, uuid)
}

func (d dbSubs) Put(ctx context.Context, uuid string, sub json.RawMessage) error {
	return d.s.PutSubscription(ctx, uuid, sub)
}

// Close 关闭数据库连接
func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
