package export

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"composer/config"
)

// OutputPath returns path of exported file under dst. Name comes from the
// configured template (slashes there produce subdirectories) or, when
// template is empty or fails, from the source file name.
func OutputPath(dst string, values Values, cfg *config.ExportConfig, log *zap.Logger) string {
	defaultName := values.SourceFile
	if defaultName == "" {
		defaultName = values.Document
	}
	defaultFile := cleanPathSegment(defaultName, cfg.Transliterate) + cfg.Format.Ext()

	if cfg.OutputNameTemplate == "" {
		return filepath.Join(dst, defaultFile)
	}
	expanded, err := expandTemplate(config.OutputNameTemplateFieldName, cfg.OutputNameTemplate, values)
	if err != nil {
		log.Warn("Unable to prepare output filename", zap.Error(err))
		return filepath.Join(dst, defaultFile)
	}
	segments := splitPath(filepath.FromSlash(strings.TrimSpace(expanded)))
	if len(segments) == 0 {
		return filepath.Join(dst, defaultFile)
	}

	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, dst)
	for _, s := range segments[:len(segments)-1] {
		parts = append(parts, cleanPathSegment(s, cfg.Transliterate))
	}
	parts = append(parts, cleanPathSegment(segments[len(segments)-1], cfg.Transliterate)+cfg.Format.Ext())
	return filepath.Join(parts...)
}

// splitPath breaks relative path into non empty segments, going up is not
// allowed.
func splitPath(path string) []string {
	segments := make([]string, 0, 8)
	for path != "" {
		head, tail := filepath.Split(path)
		if tail != "" && tail != "." && tail != ".." {
			segments = slices.Insert(segments, 0, tail)
		}
		head = strings.TrimSuffix(head, string(os.PathSeparator))
		if head == path {
			// volume name
			break
		}
		path = head
	}
	return segments
}

func cleanPathSegment(segment string, transliterate bool) string {
	if transliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
