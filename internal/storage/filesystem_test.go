package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	key, err := store.Write(context.Background(), "/scripts/s1/chunks/c1/scene.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if key != "scripts/s1/chunks/c1/scene.png" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := os.Stat(filepath.Join(dir, "scripts", "s1", "chunks", "c1", "scene.png")); err != nil {
		t.Fatalf("file not written: %v", err)
	}
	data, err := store.Read(context.Background(), key)
	if err != nil || string(data) != "png" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "scripts", "s1", "chunks", "c1"))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	for _, key := range []string{"", "..", "../etc/passwd", "a/../../b"} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestFileStorePublicURLRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://cdn.example.com/static")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	url := store.PublicURL("scripts/s1/chunks/c1/scene.png")
	if url != "https://cdn.example.com/static/scripts/s1/chunks/c1/scene.png" {
		t.Fatalf("unexpected url %q", url)
	}
	key, ok := store.KeyFromURL(url)
	if !ok || key != "scripts/s1/chunks/c1/scene.png" {
		t.Fatalf("KeyFromURL = %q, %v", key, ok)
	}
	if _, ok := store.KeyFromURL("https://elsewhere.example.com/x.png"); ok {
		t.Fatalf("foreign url should not map to a key")
	}
}

func TestAssetKey(t *testing.T) {
	if got := AssetKey("s1", "c1", "symbol", "image/jpeg"); got != "scripts/s1/chunks/c1/symbol.jpg" {
		t.Fatalf("AssetKey = %q", got)
	}
	if got := AssetKey("s1", "c1", "", "application/octet-stream"); got != "scripts/s1/chunks/c1/scene.bin" {
		t.Fatalf("AssetKey = %q", got)
	}
}
