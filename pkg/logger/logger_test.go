package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("默认配置", func(t *testing.T) {
		l, err := New(nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if l.Level() != InfoLevel {
			t.Errorf("default level = %v, want info", l.Level())
		}
	})

	t.Run("文件输出", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "app.log")
		l, err := NewWithOptions(
			WithLevel(DebugLevel),
			WithFileOutput(file),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		l.Info("hello", zap.String("k", "v"))
		_ = l.Sync()

		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if !strings.Contains(string(data), "hello") {
			t.Errorf("log file missing entry: %s", data)
		}
	})

	t.Run("轮转输出", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "rotate.log")
		l, err := NewWithOptions(WithRotateOutput(&RotateConfig{Filename: file}))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		l.Info("rotated entry")
	})
}

func TestSetLevel(t *testing.T) {
	l, err := NewWithOptions(WithLevel(InfoLevel), WithConsoleOutput())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.SetLevel(ErrorLevel)
	if l.Level() != ErrorLevel {
		t.Errorf("Level() = %v, want error", l.Level())
	}

	// 子 Logger 共享级别
	child := l.With(zap.String("component", "test"))
	child.SetLevel(DebugLevel)
	if l.Level() != DebugLevel {
		t.Errorf("parent level = %v, want debug", l.Level())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"unknown": InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded")
	if l.With(zap.Int("n", 1)) == nil {
		t.Error("Nop().With returned nil")
	}
	if err := l.Sync(); err != nil {
		t.Errorf("Nop().Sync() = %v", err)
	}
}
