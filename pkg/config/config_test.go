package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "scchat.yaml")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return file
}

func TestLoad(t *testing.T) {
	t.Run("从文件加载", func(t *testing.T) {
		file := writeConfig(t, `
server:
  addr: ":9000"
heartbeat:
  interval: 5s
  max_connections: 100
storage:
  backend: sqlite
  dsn: /tmp/scchat.db
log:
  level: debug
`)
		m := New(WithConfigFile(file))
		if err := m.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		app, err := m.App()
		if err != nil {
			t.Fatalf("App failed: %v", err)
		}
		if app.Server.Addr != ":9000" {
			t.Errorf("Server.Addr = %q, want :9000", app.Server.Addr)
		}
		if app.Heartbeat.Interval != 5*time.Second {
			t.Errorf("Heartbeat.Interval = %v, want 5s", app.Heartbeat.Interval)
		}
		if app.Heartbeat.MaxConnections != 100 {
			t.Errorf("Heartbeat.MaxConnections = %d, want 100", app.Heartbeat.MaxConnections)
		}
		if app.Storage.Backend != "sqlite" {
			t.Errorf("Storage.Backend = %q, want sqlite", app.Storage.Backend)
		}
		if app.Log.Level != "debug" {
			t.Errorf("Log.Level = %q, want debug", app.Log.Level)
		}
	})

	t.Run("文件缺失时使用默认值", func(t *testing.T) {
		m := New(WithConfigPaths(t.TempDir()))
		if err := m.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		app, err := m.App()
		if err != nil {
			t.Fatalf("App failed: %v", err)
		}
		if app.Server.Addr != ":8080" {
			t.Errorf("default Server.Addr = %q, want :8080", app.Server.Addr)
		}
		if app.Heartbeat.Interval != 15*time.Second {
			t.Errorf("default Heartbeat.Interval = %v, want 15s", app.Heartbeat.Interval)
		}
		if app.Storage.Backend != "memory" {
			t.Errorf("default Storage.Backend = %q, want memory", app.Storage.Backend)
		}
	})

	t.Run("环境变量覆盖", func(t *testing.T) {
		t.Setenv("SCCHAT_SERVER_ADDR", ":7070")
		t.Setenv("SCCHAT_LOG_LEVEL", "warn")

		m := New(WithConfigPaths(t.TempDir()))
		if err := m.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if got := m.GetString("server.addr"); got != ":7070" {
			t.Errorf("server.addr = %q, want :7070", got)
		}
		if got := m.GetString("log.level"); got != "warn" {
			t.Errorf("log.level = %q, want warn", got)
		}
	})

	t.Run("格式错误", func(t *testing.T) {
		file := writeConfig(t, "server: [unclosed")
		m := New(WithConfigFile(file))
		if err := m.Load(); err == nil {
			t.Error("Load succeeded on malformed yaml")
		}
	})
}

func TestWatch(t *testing.T) {
	file := writeConfig(t, "log:\n  level: info\n")

	changed := make(chan *App, 1)
	m := New(
		WithConfigFile(file),
		WithAutoWatch(true),
		WithOnChange(func(app *App) {
			select {
			case changed <- app:
			default:
			}
		}),
	)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer m.StopWatch()

	if err := os.WriteFile(file, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case app := <-changed:
		if app.Log.Level != "debug" {
			t.Errorf("reloaded Log.Level = %q, want debug", app.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("change callback not invoked")
	}
}

func TestSet(t *testing.T) {
	m := New()
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	m.Set("storage.backend", "redis")
	if got := m.GetString("storage.backend"); got != "redis" {
		t.Errorf("storage.backend = %q, want redis", got)
	}
	if !m.IsSet("storage.backend") {
		t.Error("IsSet(storage.backend) = false")
	}
}
