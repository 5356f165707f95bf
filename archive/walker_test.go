package archive

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func makeZip(t *testing.T, files map[string]string, order []string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}
	w := zip.NewWriter(f)
	for _, name := range order {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s in zip: %v", name, err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return zipPath
}

func TestWalk(t *testing.T) {
	files := map[string]string{
		"photos/harbor.jpg":       "harbor",
		"photos/.DS_Store":        "junk",
		"photos/old/ship.png":     "ship",
		"__MACOSX/photos/._a.jpg": "fork",
		"notes.txt":               "text",
		"photos/":                 "",
	}
	order := []string{"photos/", "photos/harbor.jpg", "photos/.DS_Store", "photos/old/ship.png", "__MACOSX/photos/._a.jpg", "notes.txt"}
	zipPath := makeZip(t, files, order)

	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{"photos/harbor.jpg", "photos/old/ship.png", "notes.txt"}},
		{"photos/", []string{"photos/harbor.jpg", "photos/old/ship.png"}},
		{"nothing/", nil},
	}
	for _, tt := range tests {
		t.Run("prefix "+tt.prefix, func(t *testing.T) {
			var visited []string
			err := Walk(zipPath, tt.prefix, func(e *Entry) error {
				data, err := e.ReadAll()
				if err != nil {
					return err
				}
				if string(data) != files[e.Name] || e.Size != uint64(len(data)) {
					t.Errorf("content of %s = %q", e.Name, data)
				}
				visited = append(visited, e.Name)
				return nil
			})
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if len(visited) != len(tt.want) {
				t.Fatalf("visited %v, want %v", visited, tt.want)
			}
			for i := range visited {
				if visited[i] != tt.want[i] {
					t.Fatalf("visited %v, want %v", visited, tt.want)
				}
			}
		})
	}
}

func TestWalk_EarlyTermination(t *testing.T) {
	zipPath := makeZip(t, map[string]string{"a.jpg": "a", "b.jpg": "b"}, []string{"a.jpg", "b.jpg"})
	stop := errors.New("stop")
	calls := 0
	err := Walk(zipPath, "", func(*Entry) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("Walk() = %v after %d calls", err, calls)
	}
}

func TestWalk_Unsafe(t *testing.T) {
	zipPath := makeZip(t, map[string]string{"ok.jpg": "a", "../evil.jpg": "b"}, []string{"ok.jpg", "../evil.jpg"})
	if err := Walk(zipPath, "", func(*Entry) error { return nil }); err == nil {
		t.Fatalf("path traversal accepted")
	}
}

func TestWalk_InvalidArchive(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(bad, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Walk(bad, "", func(*Entry) error { return nil }); err == nil {
		t.Fatalf("invalid archive accepted")
	}
	if err := Walk(filepath.Join(t.TempDir(), "missing.zip"), "", func(*Entry) error { return nil }); err == nil {
		t.Fatalf("missing archive accepted")
	}
}
