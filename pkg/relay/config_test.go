package relay

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	t.Run("默认配置有效", func(t *testing.T) {
		if err := DefaultConfig().Validate(); err != nil {
			t.Errorf("default config invalid: %v", err)
		}
	})

	cases := []struct {
		name string
		opt  Option
	}{
		{"非法最大连接数", WithMaxConnections(0)},
		{"非法心跳周期", WithHeartbeatInterval(0)},
		{"非法发送队列", WithSendQueueSize(-1)},
		{"非法帧大小", WithMessageSizeLimit(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.opt(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	t.Run("缺少档案存储", func(t *testing.T) {
		_, err := New(Stores{Queue: newMemQueue()})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("缺少离线队列", func(t *testing.T) {
		_, err := New(Stores{Profiles: newMemProfiles()})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("非法选项", func(t *testing.T) {
		_, err := New(Stores{Profiles: newMemProfiles(), Queue: newMemQueue()},
			WithHeartbeatInterval(-time.Second))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestCheckOrigin(t *testing.T) {
	newRequest := func(host, origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = host
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("默认同源", func(t *testing.T) {
		if !defaultCheckOrigin(newRequest("chat.example.com", "https://chat.example.com")) {
			t.Error("same origin rejected")
		}
		if defaultCheckOrigin(newRequest("chat.example.com", "https://evil.example.com")) {
			t.Error("cross origin accepted")
		}
		if defaultCheckOrigin(newRequest("chat.example.com", "")) {
			t.Error("missing origin accepted")
		}
	})

	t.Run("白名单", func(t *testing.T) {
		check := createWhitelistChecker([]string{"https://app.example.com"})
		if !check(newRequest("chat.example.com", "https://app.example.com")) {
			t.Error("whitelisted origin rejected")
		}
		if check(newRequest("chat.example.com", "https://other.example.com")) {
			t.Error("unlisted origin accepted")
		}
	})

	t.Run("选项覆盖", func(t *testing.T) {
		c := DefaultConfig()
		WithAllowAllOrigins()(c)
		if !c.CheckOrigin(newRequest("h", "https://anything")) {
			t.Error("allow-all rejected origin")
		}
	})
}
