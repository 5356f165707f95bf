package config

import (
	"fmt"
	"strings"
)

// ExportFormat selects markup flavor of exported files.
type ExportFormat string

const (
	ExportFormatHTML  ExportFormat = "html"
	ExportFormatXHTML ExportFormat = "xhtml"
)

// ParseExportFormat converts command line value into ExportFormat.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportFormatHTML, ExportFormatXHTML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f ExportFormat) String() string {
	return string(f)
}

func (f ExportFormat) Ext() string {
	switch f {
	case ExportFormatXHTML:
		return ".xhtml"
	case ExportFormatHTML:
		return ".html"
	default:
		// this should never happen
		panic("unsupported format requested")
	}
}
