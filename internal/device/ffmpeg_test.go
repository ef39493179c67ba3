package device

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fakeTool puts an executable shell script named name on PATH.
func fakeTool(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("shell stubs need a unix host")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write %s stub: %v", name, err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestFFmpegSource_OutlivesOpenContext(t *testing.T) {
	fakeTool(t, "ffmpeg", "exec cat /dev/zero")

	ctx, cancel := context.WithCancel(context.Background())
	src, err := NewOpener(Config{Input: "ffmpeg"}).OpenInput(ctx, 24000)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	defer src.Close()

	buf := make([]byte, 960)
	if _, err := io.ReadFull(src, buf); err != nil {
		t.Fatalf("first read: %v", err)
	}

	// The connect request that opened the device has returned.
	cancel()

	for i := 0; i < 5; i++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			t.Fatalf("read %d after open context ended: %v", i, err)
		}
	}

	src.Close()
	if _, err := io.ReadFull(src, buf); err == nil {
		t.Error("expected reads to fail after Close")
	}
}

func TestFFplaySink_OutlivesOpenContext(t *testing.T) {
	fakeTool(t, "ffplay", "exec cat > /dev/null")

	ctx, cancel := context.WithCancel(context.Background())
	sink, err := NewOpener(Config{Output: "ffplay"}).OpenOutput(ctx, 24000)
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}
	defer sink.Close()

	cancel()

	block := make([]byte, 960)
	for i := 0; i < 50; i++ {
		if _, err := sink.Write(block); err != nil {
			t.Fatalf("write %d after open context ended: %v", i, err)
		}
	}

	sink.Close()
	if _, err := sink.Write(block); err == nil {
		t.Error("expected writes to fail after Close")
	}
}
