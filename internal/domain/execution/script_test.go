package execution

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewFileHandleDerivesWorkingDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join("scripts", "jobs", "daily.go")
	handle, err := NewFileHandle(path)
	if err != nil {
		t.Fatalf("NewFileHandle returned error: %v", err)
	}

	dir, ok := handle.WorkingDir()
	if !ok || dir != filepath.Join("scripts", "jobs") {
		t.Fatalf("unexpected working dir %q (ok=%v)", dir, ok)
	}
	if handle.Language() != LanguageGo {
		t.Fatalf("unexpected language %q", handle.Language())
	}
	if handle.Name() != "daily.go" {
		t.Fatalf("unexpected name %q", handle.Name())
	}
}

func TestNewFileHandleBareNameHasNoParent(t *testing.T) {
	t.Parallel()

	handle, err := NewFileHandle("daily.py")
	if err != nil {
		t.Fatalf("NewFileHandle returned error: %v", err)
	}
	if _, ok := handle.WorkingDir(); ok {
		t.Fatalf("expected no working dir for bare file name")
	}
	if handle.Language() != LanguagePython {
		t.Fatalf("unexpected language %q", handle.Language())
	}
}

func TestNewFileHandleValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewFileHandle(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := NewFileHandle("script.rb"); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestReadSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hello.go")
	if err := os.WriteFile(path, []byte("println(1)"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	handle, err := NewFileHandle(path)
	if err != nil {
		t.Fatalf("NewFileHandle returned error: %v", err)
	}
	src, err := handle.ReadSource()
	if err != nil || src != "println(1)" {
		t.Fatalf("ReadSource = %q, %v", src, err)
	}

	inline := NewInlineHandle("", LanguageGo, "x := 1", "")
	if src, _ := inline.ReadSource(); src != "x := 1" {
		t.Fatalf("unexpected inline source %q", src)
	}
	if inline.Name() != "inline" {
		t.Fatalf("expected default inline name, got %q", inline.Name())
	}
}

func TestConfigNormalized(t *testing.T) {
	t.Parallel()

	cfg := Config{LoopTimes: 0, Delay: -time.Second, Interval: -time.Second, Limits: RunLimits{TimeLimit: -1, MemoryLimitBytes: -1}}.Normalized()
	if cfg.LoopTimes != 1 || cfg.Delay != 0 || cfg.Interval != 0 {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
	if cfg.Limits.TimeLimit != 0 || cfg.Limits.MemoryLimitBytes != 0 {
		t.Fatalf("expected clamped limits, got %+v", cfg.Limits)
	}

	forever := Config{LoopTimes: LoopForever}.Normalized()
	if !forever.Repeats(1_000_000) {
		t.Fatalf("expected LoopForever to repeat indefinitely")
	}

	three := Config{LoopTimes: 3}.Normalized()
	if !three.Repeats(2) || three.Repeats(3) {
		t.Fatalf("expected exactly three iterations")
	}
}
