package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStorePutAndDelete(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, "http://localhost:8080/uploads/")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	key := "profile_images/alice_1700000000000"
	if err := fs.Put(ctx, key, strings.NewReader("img"), 3, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "profile_images", "alice_1700000000000"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "img" {
		t.Fatalf("unexpected content: %q", data)
	}
	if got := fs.URL(key); got != "http://localhost:8080/uploads/profile_images/alice_1700000000000" {
		t.Fatalf("unexpected url: %s", got)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestFileStoreKeepsKeysInsideRoot(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := fs.Put(context.Background(), "../../escape", strings.NewReader("x"), 1, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape")); err != nil {
		t.Fatalf("expected object under root: %v", err)
	}
}

func TestPublicBaseURL(t *testing.T) {
	if got := publicBaseURL(MinioOptions{Endpoint: "minio:9000", Bucket: "cards"}); got != "http://minio:9000/cards" {
		t.Fatalf("unexpected base: %s", got)
	}
	if got := publicBaseURL(MinioOptions{Endpoint: "s3", Bucket: "b", UseSSL: true, PublicBaseURL: "https://cdn.example.com/"}); got != "https://cdn.example.com" {
		t.Fatalf("unexpected base: %s", got)
	}
}

func TestDetectImageType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	if ct, ok := DetectImageType(png); !ok || ct != "image/png" {
		t.Fatalf("expected png, got %s %v", ct, ok)
	}
	if _, ok := DetectImageType([]byte("<html></html>")); ok {
		t.Fatalf("html must be rejected")
	}
}

func TestProfileImageKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	if got := ProfileImageKey("alice", at); got != "profile_images/alice_1700000000123" {
		t.Fatalf("unexpected key: %s", got)
	}
}
