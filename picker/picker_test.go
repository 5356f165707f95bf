package picker

import (
	"archive/zip"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

type usage map[string]int

func (u usage) Count(uuid string) int { return u[uuid] }

func sampleCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog(filepath.Join(t.TempDir(), "catalog.yaml"))
	c.Add(Entry{UUID: "a", Caption: "Image 10"})
	c.Add(Entry{UUID: "b", Caption: "Image 2"})
	c.Add(Entry{UUID: "c", Caption: "Harbor"})
	return c
}

func uuids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.UUID)
	}
	return out
}

func TestPanelScopes(t *testing.T) {
	u := usage{"a": 2}
	p := NewPanel(sampleCatalog(t), u, "/thumbs/", "https://example.com/inspect", zaptest.NewLogger(t))

	for _, tc := range []struct {
		scope Scope
		want  []string
	}{
		{ScopeAll, []string{"c", "b", "a"}},
		{ScopeUsed, []string{"a"}},
		{ScopeUnused, []string{"c", "b"}},
	} {
		t.Run(string(tc.scope), func(t *testing.T) {
			p.SetScope(tc.scope)
			got := uuids(p.Visible())
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}

	// usage change is picked up on refresh
	p.SetScope(ScopeUnused)
	u["c"] = 1
	p.Refresh()
	if got := uuids(p.Visible()); len(got) != 1 || got[0] != "b" {
		t.Fatalf("refresh did not apply usage: %v", got)
	}
}

func TestPanelLookup(t *testing.T) {
	p := NewPanel(sampleCatalog(t), nil, "/thumbs/", "https://example.com/inspect", nil)

	it, ok := p.Lookup("c")
	if !ok {
		t.Fatalf("entry not found")
	}
	if it.ThumbnailURL != "/thumbs/c.jpg" || it.InspectURL != "https://example.com/inspect/c" || it.Caption != "Harbor" {
		t.Fatalf("unexpected item %+v", it)
	}
	if p.Caption("zzz") != "" || p.Caption("b") != "Image 2" {
		t.Fatalf("unexpected captions")
	}
	if _, ok := p.Lookup("zzz"); ok {
		t.Fatalf("unknown entry found")
	}
}

func TestParseScope(t *testing.T) {
	if s, err := ParseScope(" Used "); err != nil || s != ScopeUsed {
		t.Fatalf("unexpected result %v %v", s, err)
	}
	if s, err := ParseScope(""); err != nil || s != ScopeAll {
		t.Fatalf("empty scope must default to all: %v %v", s, err)
	}
	if _, err := ParseScope("recent"); err == nil {
		t.Fatalf("unknown scope accepted")
	}
}

func TestCatalogPersistence(t *testing.T) {
	c := sampleCatalog(t)
	if err := c.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := LoadCatalog(c.Path())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if e, ok := loaded.Lookup("c"); !ok || e.Caption != "Harbor" || len(loaded.Images) != 3 {
		t.Fatalf("unexpected catalog %+v", loaded.Images)
	}

	missing, err := LoadCatalog(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil || len(missing.Images) != 0 {
		t.Fatalf("missing catalog must be empty: %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("images:\n  - uuid: a\n    colour: red\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(bad); err == nil {
		t.Fatalf("unknown fields must be rejected")
	}

	dup := filepath.Join(t.TempDir(), "dup.yaml")
	if err := os.WriteFile(dup, []byte("images:\n  - uuid: a\n  - uuid: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(dup); err == nil {
		t.Fatalf("duplicate uuid must be rejected")
	}
}

func TestImport(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "catalog.yaml"))
	im := NewImporter(c, 64, 80, zaptest.NewLogger(t))

	src := image.NewRGBA(image.Rect(0, 0, 256, 128))
	for x := range 256 {
		src.Set(x, 64, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "red_line-final.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("raster", func(t *testing.T) {
		e, err := im.ImportFile(path, "")
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if e.Caption != "red line final" || e.Type != "image/png" || e.Width != 256 || e.Height != 128 {
			t.Fatalf("unexpected entry %+v", e)
		}
		thumb, err := os.ReadFile(filepath.Join(c.Dir(), ThumbnailName(e.UUID)))
		if err != nil {
			t.Fatalf("thumbnail missing: %v", err)
		}
		img, err := jpeg.Decode(bytes.NewReader(thumb))
		if err != nil || img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
			t.Fatalf("unexpected thumbnail %v %v", err, img)
		}
		if _, err := os.Stat(filepath.Join(c.Dir(), e.File)); err != nil {
			t.Fatalf("original missing: %v", err)
		}
		if _, ok := c.Lookup(e.UUID); !ok {
			t.Fatalf("entry not added to catalog")
		}
	})

	t.Run("svg", func(t *testing.T) {
		svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 50"><rect width="100" height="50"/></svg>`)
		e, err := im.Import(svg, "shape.svg", "Shape")
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if e.Type != "image/svg+xml" || e.Width != 64 || e.Height != 32 || filepath.Ext(e.File) != ".svg" {
			t.Fatalf("unexpected entry %+v", e)
		}
	})

	t.Run("not_image", func(t *testing.T) {
		if _, err := im.Import([]byte("just some text"), "notes.txt", ""); !errors.Is(err, ErrNotImage) {
			t.Fatalf("expected ErrNotImage, got %v", err)
		}
	})
}

func TestCaptionFromName(t *testing.T) {
	for in, want := range map[string]string{
		"/tmp/old_harbor-2019.jpg": "old harbor 2019",
		"plain":                    "plain",
		"a..b.png":                 "a b",
	} {
		if got := CaptionFromName(in); got != want {
			t.Errorf("CaptionFromName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportArchive(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "catalog.yaml"))
	im := NewImporter(c, 32, 80, zaptest.NewLogger(t))

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 40, 20))); err != nil {
		t.Fatal(err)
	}
	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, data := range map[string][]byte{
		"set/old_harbor.png": img.Bytes(),
		"set/readme.txt":     []byte("not an image"),
		"set/broken.png":     []byte("\x89PNG\r\n\x1a\nbroken"),
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	entries, err := im.ImportArchive(zipPath, "set/")
	if err == nil {
		t.Fatalf("broken image must be reported")
	}
	if len(entries) != 1 || entries[0].Caption != "old harbor" || len(c.Images) != 1 {
		t.Fatalf("unexpected import result %+v", entries)
	}
}
