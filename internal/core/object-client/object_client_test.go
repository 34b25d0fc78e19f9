package objectclient

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	if err != nil {
		t.Fatal(err)
	}

	ref, err := s.SaveAsset(ctx, "Q1-2025", "deck_chart_abc.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("SaveAsset: %v", err)
	}
	if want := filepath.Join(root, "Q1-2025", "deck_chart_abc.png"); ref != want {
		t.Errorf("ref = %s, want %s", ref, want)
	}

	rc, ct, err := s.OpenAsset(ctx, ref)
	if err != nil {
		t.Fatalf("OpenAsset: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "png-bytes" || ct != "image/png" {
		t.Errorf("got %q %q", data, ct)
	}

	if err := s.DeleteAsset(ctx, ref); err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if _, _, err := s.OpenAsset(ctx, ref); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("OpenAsset after delete = %v, want ErrNotFound", err)
	}
}

func TestLocalStore_RejectsEscapes(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveAsset(ctx, "..", "x.png", nil, ""); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("SaveAsset(..) = %v", err)
	}
	if _, err := s.SaveAsset(ctx, "Q1", "a/b.png", nil, ""); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("SaveAsset(a/b) = %v", err)
	}
	if _, _, err := s.OpenAsset(ctx, "/etc/passwd"); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("OpenAsset outside root = %v", err)
	}
}

func TestParseS3Ref(t *testing.T) {
	tests := []struct {
		ref        string
		bucket     string
		key        string
		wantErrStr bool
	}{
		{"s3://assets/charts/Q1-2025/x.png", "assets", "charts/Q1-2025/x.png", false},
		{"s3://assets", "", "", true},
		{"/local/x.png", "", "", true},
	}
	for _, tt := range tests {
		b, k, err := parseS3Ref(tt.ref)
		if (err != nil) != tt.wantErrStr {
			t.Errorf("parseS3Ref(%q) err = %v", tt.ref, err)
			continue
		}
		if b != tt.bucket || k != tt.key {
			t.Errorf("parseS3Ref(%q) = %q %q", tt.ref, b, k)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	if ContentTypeFor("a/B.PNG") != "image/png" || ContentTypeFor("x.bin") != "application/octet-stream" {
		t.Error("unexpected content types")
	}
}
