package picker

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/maruel/natural"
	"go.uber.org/zap"
)

// Scope selects which catalog images the panel shows.
type Scope string

const (
	ScopeUnused Scope = "unused"
	ScopeUsed   Scope = "used"
	ScopeAll    Scope = "all"
)

// ParseScope converts configuration value into Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeUnused:
		return ScopeUnused, nil
	case ScopeUsed:
		return ScopeUsed, nil
	case ScopeAll, "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("unknown picker scope %q", s)
}

// Usage reports how many times an image is embedded in the document.
type Usage interface {
	Count(uuid string) int
}

// Item is a single panel entry as presented to the host.
type Item struct {
	UUID         string `json:"uuid"`
	ThumbnailURL string `json:"thumbnail_url"`
	Caption      string `json:"caption"`
	InspectURL   string `json:"inspect_url"`
	Uses         int    `json:"uses"`
}

// Panel presents catalog filtered by image usage.
type Panel struct {
	catalog    *Catalog
	usage      Usage
	thumbBase  string
	inspectURL string
	log        *zap.Logger

	scope   Scope
	visible []Item
}

// NewPanel creates panel over catalog. Thumbnail URLs are built by joining
// thumbBase with thumbnail file name, inspect URLs by joining inspectBase
// with image uuid.
func NewPanel(catalog *Catalog, usage Usage, thumbBase, inspectBase string, log *zap.Logger) *Panel {
	if log == nil {
		log = zap.NewNop()
	}
	return &Panel{
		catalog:    catalog,
		usage:      usage,
		thumbBase:  thumbBase,
		inspectURL: inspectBase,
		log:        log.Named("picker"),
		scope:      ScopeAll,
	}
}

// SetUsage replaces usage source, used when document is reloaded.
func (p *Panel) SetUsage(usage Usage) {
	p.usage = usage
}

// Scope returns active filter.
func (p *Panel) Scope() Scope {
	return p.scope
}

// SetScope changes filter and recomputes visible list.
func (p *Panel) SetScope(s Scope) {
	p.scope = s
	p.Refresh()
}

// Caption returns default caption of catalog image.
func (p *Panel) Caption(uuid string) string {
	if e, ok := p.catalog.Lookup(uuid); ok {
		return e.Caption
	}
	return ""
}

// Lookup returns panel entry for image identity regardless of filter.
func (p *Panel) Lookup(uuid string) (Item, bool) {
	e, ok := p.catalog.Lookup(uuid)
	if !ok {
		return Item{}, false
	}
	return p.item(e), true
}

func (p *Panel) item(e Entry) Item {
	it := Item{
		UUID:         e.UUID,
		Caption:      e.Caption,
		ThumbnailURL: joinURL(p.thumbBase, ThumbnailName(e.UUID)),
		InspectURL:   joinURL(p.inspectURL, e.UUID),
	}
	if p.usage != nil {
		it.Uses = p.usage.Count(e.UUID)
	}
	return it
}

// Refresh recomputes visible entries from current usage counts. It has to be
// called after every insertion, removal or eviction.
func (p *Panel) Refresh() {
	visible := make([]Item, 0, len(p.catalog.Images))
	for _, e := range p.catalog.Images {
		it := p.item(e)
		switch p.scope {
		case ScopeUnused:
			if it.Uses > 0 {
				continue
			}
		case ScopeUsed:
			if it.Uses == 0 {
				continue
			}
		}
		visible = append(visible, it)
	}
	slices.SortStableFunc(visible, func(a, b Item) int {
		switch {
		case natural.Less(a.Caption, b.Caption):
			return -1
		case natural.Less(b.Caption, a.Caption):
			return 1
		}
		return strings.Compare(a.UUID, b.UUID)
	})
	p.visible = visible
	p.log.Debug("Panel refreshed", zap.String("scope", string(p.scope)), zap.Int("visible", len(visible)))
}

// Visible returns entries passing the filter ordered by caption.
func (p *Panel) Visible() []Item {
	return slices.Clone(p.visible)
}

func joinURL(base, name string) string {
	if base == "" {
		return name
	}
	if u, err := url.Parse(base); err == nil && u.Scheme != "" {
		return u.JoinPath(name).String()
	}
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(name)
}
