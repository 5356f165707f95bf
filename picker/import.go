package picker

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"composer/archive"
	"composer/utils/images"
)

var svgType = filetype.NewType("svg", "image/svg+xml")

func init() {
	filetype.AddMatcher(svgType, images.IsSVG)
}

// ErrNotImage is returned for files which are not supported images.
var ErrNotImage = errors.New("not a supported image")

// ThumbnailName returns thumbnail file name for image identity.
func ThumbnailName(uuid string) string {
	return uuid + ".jpg"
}

// Importer adds image files to the catalog generating thumbnails.
type Importer struct {
	catalog *Catalog
	size    int
	quality int
	log     *zap.Logger
	now     func() time.Time
}

// NewImporter creates importer writing thumbnails of size x size pixels into
// catalog directory.
func NewImporter(catalog *Catalog, size, quality int, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{catalog: catalog, size: size, quality: quality, log: log.Named("import"), now: time.Now}
}

// ImportFile reads image from disk and adds it to the catalog. Caption
// defaults to humanized file name.
func (im *Importer) ImportFile(path, caption string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("unable to read image: %w", err)
	}
	if caption == "" {
		caption = CaptionFromName(path)
	}
	return im.Import(data, filepath.Base(path), caption)
}

// Import adds image data to the catalog. Catalog itself is not saved.
func (im *Importer) Import(data []byte, name, caption string) (Entry, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return Entry{}, fmt.Errorf("unable to detect type of %s: %w", name, err)
	}
	if kind != svgType && !filetype.IsImage(data) {
		return Entry{}, fmt.Errorf("%s: %w", name, ErrNotImage)
	}

	var img image.Image
	if kind == svgType {
		img, err = images.RasterizeSVG(data, im.size)
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return Entry{}, fmt.Errorf("unable to decode %s (%s): %w", name, kind.MIME.Value, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, err
	}
	thumb, err := images.Thumbnail(img, im.size, im.quality)
	if err != nil {
		return Entry{}, fmt.Errorf("unable to make thumbnail for %s: %w", name, err)
	}

	dir := im.catalog.Dir()
	if err := os.MkdirAll(filepath.Join(dir, "originals"), 0o755); err != nil {
		return Entry{}, err
	}
	e := Entry{
		UUID:     id.String(),
		Caption:  caption,
		File:     filepath.Join("originals", id.String()+"."+kind.Extension),
		Type:     kind.MIME.Value,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Imported: im.now().UTC().Truncate(time.Second),
	}
	if err := os.WriteFile(filepath.Join(dir, e.File), data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("unable to store original of %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ThumbnailName(e.UUID)), thumb, 0o644); err != nil {
		return Entry{}, fmt.Errorf("unable to store thumbnail of %s: %w", name, err)
	}
	im.catalog.Add(e)
	im.log.Info("Image imported", zap.String("name", name), zap.String("uuid", e.UUID), zap.String("type", e.Type),
		zap.Int("width", e.Width), zap.Int("height", e.Height))
	return e, nil
}

// CaptionFromName turns file name into caption: extension is dropped and
// separators become spaces.
func CaptionFromName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// ImportArchive imports every image found in zip archive under prefix.
// Files which are not images are skipped, other failures are collected and
// do not stop the import.
func (im *Importer) ImportArchive(path, prefix string) ([]Entry, error) {
	var (
		imported []Entry
		errs     error
	)
	err := archive.Walk(path, prefix, func(entry *archive.Entry) error {
		data, err := entry.ReadAll()
		if err != nil {
			errs = multierr.Append(errs, err)
			return nil
		}
		e, err := im.Import(data, entry.Name, CaptionFromName(entry.Name))
		switch {
		case errors.Is(err, ErrNotImage):
			im.log.Debug("Skipping archive entry", zap.String("archive", path), zap.String("entry", entry.Name))
		case err != nil:
			errs = multierr.Append(errs, err)
		default:
			imported = append(imported, e)
		}
		return nil
	})
	if err != nil {
		return imported, fmt.Errorf("unable to read archive %s: %w", path, err)
	}
	return imported, errs
}
