package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	err := WriteFile(context.Background(), path, func(w io.Writer) error {
		_, err := fmt.Fprint(w, `{"ok":true}`)
		return err
	})
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("file content = %q", got)
	}
}

func TestWriteFileRenderErrorKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.html")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("render failed")
	err := WriteFile(context.Background(), path, func(w io.Writer) error {
		fmt.Fprint(w, "half")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFile() error = %v, want %v", err, boom)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "previous" {
		t.Errorf("file content = %q, want previous", got)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".report.html.") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestWriteFileWaitsForLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	held := flock.New(path + ".lock")
	if err := held.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := WriteFile(ctx, path, func(io.Writer) error { return nil })
	if err == nil {
		t.Fatal("WriteFile() should fail while another holder owns the lock")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("report should not be written without the lock")
	}
}
