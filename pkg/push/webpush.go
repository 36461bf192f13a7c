// Package push 实现离线推送通知的投递端
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
)

// Config Web Push 配置。VAPID 密钥对用于服务端身份签名。
type Config struct {
	Subscriber      string // mailto: 联系地址
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int // 推送服务端保留秒数，默认 60
}

// WebPush 基于 Web Push 协议的通知投递端，实现 relay.Notifier
type WebPush struct {
	config *Config
}

// NewWebPush 创建 Web Push 投递端
func NewWebPush(config *Config) (*WebPush, error) {
	if config == nil || config.VAPIDPublicKey == "" || config.VAPIDPrivateKey == "" {
		return nil, fmt.Errorf("push: vapid key pair is required")
	}
	if config.TTL == 0 {
		config.TTL = 60
	}
	return &WebPush{config: config}, nil
}

// payload 推送通知内容
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notify 向一个浏览器订阅投递通知
func (w *WebPush) Notify(ctx context.Context, sub json.RawMessage, title, body string) error {
	var subscription webpush.Subscription
	if err := json.Unmarshal(sub, &subscription); err != nil {
		return fmt.Errorf("push: decode subscription: %w", err)
	}
	if subscription.Endpoint == "" {
		return fmt.Errorf("push: subscription has no endpoint")
	}

	msg, err := json.Marshal(payload{Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("push: encode payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, msg, &subscription, &webpush.Options{
		Subscriber:      w.config.Subscriber,
		VAPIDPublicKey:  w.config.VAPIDPublicKey,
		VAPIDPrivateKey: w.config.VAPIDPrivateKey,
		TTL:             w.config.TTL,
	})
	if err != nil {
		return fmt.Errorf("push: send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push: notification rejected: status %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys 生成一对新的 VAPID 密钥，供部署时一次性使用
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
