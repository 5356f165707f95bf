// Package picker implements image source panel: catalog of images available
// for embedding, usage-driven visibility filter and catalog import.
package picker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is a single catalog image.
type Entry struct {
	UUID     string    `yaml:"uuid"`
	Caption  string    `yaml:"caption"`
	File     string    `yaml:"file"`
	Type     string    `yaml:"type"`
	Width    int       `yaml:"width"`
	Height   int       `yaml:"height"`
	Imported time.Time `yaml:"imported"`
}

// Catalog is a list of images persisted as YAML file next to thumbnails.
type Catalog struct {
	Images []Entry `yaml:"images"`

	path string
}

// NewCatalog creates empty catalog to be stored at path.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// LoadCatalog reads catalog file. Missing file results in empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewCatalog(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read catalog: %w", err)
	}

	c := NewCatalog(path)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to decode catalog %q: %w", path, err)
	}
	seen := make(map[string]struct{}, len(c.Images))
	for _, e := range c.Images {
		if e.UUID == "" {
			return nil, fmt.Errorf("catalog %q has entry without uuid (%s)", path, e.File)
		}
		if _, ok := seen[e.UUID]; ok {
			return nil, fmt.Errorf("catalog %q has duplicate uuid %s", path, e.UUID)
		}
		seen[e.UUID] = struct{}{}
	}
	return c, nil
}

// Path returns catalog file location.
func (c *Catalog) Path() string {
	return c.path
}

// Dir returns directory holding catalog files.
func (c *Catalog) Dir() string {
	return filepath.Dir(c.path)
}

// Lookup finds entry by identity.
func (c *Catalog) Lookup(uuid string) (Entry, bool) {
	i := slices.IndexFunc(c.Images, func(e Entry) bool { return e.UUID == uuid })
	if i < 0 {
		return Entry{}, false
	}
	return c.Images[i], true
}

// Add appends or replaces entry.
func (c *Catalog) Add(e Entry) {
	if i := slices.IndexFunc(c.Images, func(o Entry) bool { return o.UUID == e.UUID }); i >= 0 {
		c.Images[i] = e
		return
	}
	c.Images = append(c.Images, e)
}

// Save writes catalog file atomically.
func (c *Catalog) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("unable to encode catalog: %w", err)
	}
	if err := os.MkdirAll(c.Dir(), 0o755); err != nil {
		return fmt.Errorf("unable to create catalog directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("unable to write catalog: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("unable to write catalog: %w", err)
	}
	return nil
}
