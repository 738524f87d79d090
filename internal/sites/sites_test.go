package sites

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OrderAndBlankLines(t *testing.T) {
	f := filepath.Join(t.TempDir(), "sites.txt")
	_ = os.WriteFile(f, []byte("stackoverflow\n\n  superuser  \r\nserverfault\n"), 0644)
	got, err := Load(f)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"stackoverflow", "superuser", "serverfault"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Fatalf("got[%d] = %q want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_EmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "absent.txt")); err == nil {
		t.Fatal("expect error for missing file")
	}
	f := filepath.Join(dir, "sites.txt")
	_ = os.WriteFile(f, []byte("\n \n"), 0644)
	if _, err := Load(f); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expect ErrEmpty, got %v", err)
	}
}

func TestProvider_TransientEmptyIsNotFatal(t *testing.T) {
	f := filepath.Join(t.TempDir(), "sites.txt")
	p := Provider{Path: f}
	if got := p.Sites(); len(got) != 0 {
		t.Fatalf("missing file should yield no sites, got %v", got)
	}
	_ = os.WriteFile(f, []byte("askubuntu\n"), 0644)
	if got := p.Sites(); len(got) != 1 || got[0] != "askubuntu" {
		t.Fatalf("edits should apply on next read, got %v", got)
	}
}
