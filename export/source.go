// Package export implements file oriented commands: normalizing markup files
// and exporting documents under templated names.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"composer/config"
	"composer/editor"
	"composer/markup"
)

// Source is document content read from a file.
type Source struct {
	Content string
	Title   string
	Name    string
}

func isXHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xhtml", ".xht", ".xml":
		return true
	}
	return false
}

// ReadSource reads markup file. XHTML files are parsed as XML and may carry
// title, anything else is treated as HTML fragment in encName encoding
// (detected when empty).
func ReadSource(path, encName string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open source: %w", err)
	}
	defer f.Close()

	src := &Source{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	if !isXHTML(path) {
		if src.Content, err = markup.Decode(f, encName); err != nil {
			return nil, err
		}
		return src, nil
	}

	doc, title, err := markup.ReadXHTML(f)
	if err != nil {
		return nil, err
	}
	if src.Content, err = markup.RenderHTML(doc); err != nil {
		return nil, err
	}
	src.Title = title
	return src, nil
}

// Render returns editor document in requested format.
func Render(ed *editor.Editor, format config.ExportFormat) ([]byte, error) {
	content, err := ed.Markup()
	if err != nil {
		return nil, err
	}
	if format != config.ExportFormatXHTML {
		return []byte(content), nil
	}
	doc, err := markup.ParseHTML(content)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := markup.WriteXHTML(buf, doc, ed.Metadata().Title); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
