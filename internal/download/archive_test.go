package download

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// buildZip creates a zip archive from name -> content pairs.
func buildZip(t *testing.T, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "fixture.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildTarGz(t *testing.T, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "fixture.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractZip(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"demo-main/README.md":   "# demo",
		"demo-main/src/main.go": "package main",
	})

	dest := t.TempDir()
	if err := extractArchive(archive, dest); err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "demo-main", "src", "main.go"))
	if err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
	if string(data) != "package main" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestExtractTarGzBySniffing(t *testing.T) {
	// The file carries no useful extension; the gzip magic must be enough.
	archive := buildTarGz(t, map[string]string{
		"demo-main/file.txt": "recompressed by a mirror",
	})
	renamed := filepath.Join(filepath.Dir(archive), "archive.bin")
	if err := os.Rename(archive, renamed); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := extractArchive(renamed, dest); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "demo-main", "file.txt"))
	if err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
	if string(data) != "recompressed by a mirror" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestExtractRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(path, []byte("not an archive at all"), 0644); err != nil {
		t.Fatal(err)
	}
	err := extractArchive(path, t.TempDir())
	if err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestExtractRejectsTraversalEntries(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"../escape.txt": "gotcha",
	})
	if err := extractArchive(archive, t.TempDir()); err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
}

func TestContentRootSingleTopLevelDir(t *testing.T) {
	dir := t.TempDir()
	inner := filepath.Join(dir, "demo-main")
	if err := os.MkdirAll(filepath.Join(inner, "src"), 0755); err != nil {
		t.Fatal(err)
	}

	root, err := contentRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	if root != inner {
		t.Errorf("expected wrapper dir as root, got %s", root)
	}

	// With a second top-level entry the tree itself is the root.
	if err := os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	root, err = contentRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	if root != dir {
		t.Errorf("expected tree root, got %s", root)
	}
}

func TestMoveContentsReplacesExisting(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("nested"), 0644); err != nil {
		t.Fatal(err)
	}

	// Pre-existing same-named entry must be replaced, unrelated ones kept.
	if err := os.WriteFile(filepath.Join(dest, "a.txt"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "keep.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := moveContents(src, dest); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dest, "a.txt"))
	if string(data) != "new" {
		t.Errorf("expected a.txt replaced, got %q", data)
	}
	data, _ = os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	if string(data) != "nested" {
		t.Errorf("expected nested file moved, got %q", data)
	}
	if _, err := os.Stat(filepath.Join(dest, "keep.txt")); err != nil {
		t.Error("unrelated destination entry must be kept")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "d"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "d", "b"), make([]byte, 50), 0644); err != nil {
		t.Fatal(err)
	}
	if got := dirSize(dir); got != 150 {
		t.Errorf("expected 150 bytes, got %d", got)
	}
}
