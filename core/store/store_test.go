package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadMissing(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "missing.json"), false)
	if _, err := f.Read(); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestWriteCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "doc.json")
	f := New(path, false)
	if err := f.Write([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := f.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestWriteKeepsBackup(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "doc.json"), true)
	if err := f.Write([]byte("first")); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if _, err := os.Stat(f.BackupPath()); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("no backup expected after the first write, got %v", err)
	}
	if err := f.Write([]byte("second")); err != nil {
		t.Fatalf("write second: %v", err)
	}
	bak, err := os.ReadFile(f.BackupPath())
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(bak) != "first" {
		t.Fatalf("backup should hold the previous content, got %q", bak)
	}

	// Identical content is skipped, so the backup still holds "first".
	if err := f.Write([]byte("second")); err != nil {
		t.Fatalf("write again: %v", err)
	}
	bak, _ = os.ReadFile(f.BackupPath())
	if string(bak) != "first" {
		t.Fatalf("unchanged write must not rotate the backup, got %q", bak)
	}
}

func TestWriteRecreatesDeletedFile(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "doc.json"), false)
	if err := f.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Remove(f.Path()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(f.Path()); err != nil {
		t.Fatalf("file should exist again: %v", err)
	}
}

func TestWatchReportsExternalChanges(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "doc.json"), false)
	if err := f.Write([]byte("ours")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 16)
	if err := f.Watch(ctx, func(data []byte) error { changes <- string(data); return nil }); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := os.WriteFile(f.Path(), []byte("theirs"), 0644); err != nil {
		t.Fatalf("external write: %v", err)
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case data := <-changes:
			if data == "theirs" {
				return
			}
		case <-timeout:
			t.Fatal("external change was not reported")
		}
	}
}

func TestWriteAfterUnwatchedExternalEdit(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "doc.json"), false)
	if err := f.Write([]byte("ours")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(f.Path(), []byte("theirs"), 0644); err != nil {
		t.Fatalf("external write: %v", err)
	}
	if err := f.Write([]byte("ours")); err != nil {
		t.Fatalf("write again: %v", err)
	}
	data, _ := os.ReadFile(f.Path())
	if string(data) != "ours" {
		t.Fatalf("write skipped over an external edit, file holds %q", data)
	}
}

func TestRejectedContentIsNotBackedUp(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "doc.json"), true)
	if err := f.Write([]byte("good")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Write([]byte("better")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rejected := make(chan struct{}, 16)
	err := f.Watch(ctx, func(data []byte) error {
		if string(data) == "broken" {
			rejected <- struct{}{}
			return errors.New("cannot decode")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := os.WriteFile(f.Path(), []byte("broken"), 0644); err != nil {
		t.Fatalf("external write: %v", err)
	}
	select {
	case <-rejected:
	case <-time.After(5 * time.Second):
		t.Fatal("external change was not reported")
	}
	for deadline := time.Now().Add(5 * time.Second); ; time.Sleep(10 * time.Millisecond) {
		f.lock.Lock()
		done := f.rejected
		f.lock.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rejection was not recorded")
		}
	}

	if err := f.Write([]byte("best")); err != nil {
		t.Fatalf("write: %v", err)
	}
	bak, err := os.ReadFile(f.BackupPath())
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(bak) != "good" {
		t.Fatalf("backup must not take the rejected content, got %q", bak)
	}
	data, _ := os.ReadFile(f.Path())
	if string(data) != "best" {
		t.Fatalf("file holds %q", data)
	}
}
