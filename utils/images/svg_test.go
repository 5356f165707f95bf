package images

import "testing"

func TestRasterizeSVG(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 50"><rect width="100" height="50"/></svg>`)

	for _, tc := range []struct {
		name string
		box  int
		w, h int
	}{
		{"intrinsic", 0, 100, 50},
		{"fit_box", 150, 150, 75},
		{"shrink", 40, 40, 20},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img, err := RasterizeSVG(svg, tc.box)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if img.Bounds().Dx() != tc.w || img.Bounds().Dy() != tc.h {
				t.Fatalf("unexpected bounds: %v", img.Bounds())
			}
		})
	}
}

func TestIsSVG(t *testing.T) {
	for in, want := range map[string]bool{
		`<svg xmlns="http://www.w3.org/2000/svg"/>`:  true,
		"\ufeff<?xml version=\"1.0\"?>\n<svg></svg>": true,
		`<html><body>no vector here</body></html>`:   false,
		"\x89PNG\r\n\x1a\n":                          false,
		"":                                           false,
	} {
		if got := IsSVG([]byte(in)); got != want {
			t.Errorf("IsSVG(%q) = %v, want %v", in, got, want)
		}
	}
}
