package persist

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server exposes Store over HTTP using the document endpoint wire format.
type Server struct {
	store *Store
	token string
	log   *zap.Logger
}

// NewServer creates endpoint over the store.
func NewServer(store *Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: store, log: log.Named("server")}
}

// SetToken requires every request to carry bearer token, empty token
// disables the check.
func (s *Server) SetToken(token string) {
	s.token = token
}

// Handler returns router serving /documents endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.authorize)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.createDocument)
		r.Get("/{id}", s.getDocument)
		r.Post("/{id}", s.saveDocument)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				s.fail(w, http.StatusUnauthorized, errors.New("not authorized"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	id, err := NewID()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	rev, err := s.store.Save(r.Context(), id, 0, Revision{})
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := ValidateID(id); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	rev, err := s.store.Latest(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		s.fail(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) saveDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := ValidateID(id); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid form: %w", err))
		return
	}
	base, err := strconv.ParseInt(strings.TrimSpace(r.PostForm.Get(FieldVersion)), 10, 64)
	if err != nil || base < 0 {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid version %q", r.PostForm.Get(FieldVersion)))
		return
	}

	rev, err := s.store.Save(r.Context(), id, base, Revision{
		Content:   r.PostForm.Get(FieldContent),
		Title:     r.PostForm.Get(FieldTitle),
		Date:      r.PostForm.Get(FieldDate),
		Timezone:  r.PostForm.Get(FieldTimezone),
		Reference: r.PostForm.Get(FieldReference),
	})
	switch {
	case errors.Is(err, ErrVersionConflict):
		s.log.Info("Conflicting save", zap.String("id", id), zap.Int64("base", base), zap.Int64("latest", rev.Version))
		writeJSON(w, http.StatusConflict, map[string]any{
			"html":    conflictMarkup(rev),
			"version": rev.Version,
		})
		return
	case errors.Is(err, ErrNotFound):
		s.fail(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"version":           rev.Version,
		"modified_datetime": rev.Modified.Format(time.RFC3339),
	})
}

// conflictMarkup renders server side revision for the resolution dialog.
func conflictMarkup(rev *Revision) string {
	var sb strings.Builder
	sb.WriteString(`<div class="conflict">`)
	fmt.Fprintf(&sb, `<p>Document was changed elsewhere (version %d, %s).</p>`,
		rev.Version, html.EscapeString(rev.Modified.Format(time.RFC1123)))
	if rev.Title != "" {
		fmt.Fprintf(&sb, `<h2>%s</h2>`, html.EscapeString(rev.Title))
	}
	fmt.Fprintf(&sb, `<pre>%s</pre>`, html.EscapeString(rev.Content))
	sb.WriteString(`</div>`)
	return sb.String()
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
