package markup

import (
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// LookupEncoding resolves IANA character set name.
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown character set %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported character set %q", name)
	}
	return enc, nil
}

// Decode reads markup converting it to UTF-8. When encName is empty encoding
// is detected from BOM and meta declarations, defaulting to UTF-8.
func Decode(r io.Reader, encName string) (string, error) {
	var (
		src io.Reader
		err error
	)
	if encName != "" {
		enc, lerr := LookupEncoding(encName)
		if lerr != nil {
			return "", lerr
		}
		src = transform.NewReader(r, enc.NewDecoder())
	} else if src, err = charset.NewReader(r, "text/html"); err != nil {
		return "", fmt.Errorf("unable to detect markup encoding: %w", err)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("unable to read markup: %w", err)
	}
	return string(data), nil
}
