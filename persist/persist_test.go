package persist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"composer/autosave"
)

const docID = "0190b3a4-7c2e-7d4f-9a61-3c5b2e8f1a00"

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "revisions.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreVersioning(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Latest(ctx, docID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Latest(ctx, "not-a-uuid"); err == nil {
		t.Fatalf("expected invalid id error")
	}

	rev, err := s.Save(ctx, docID, 0, Revision{Content: "<p>one</p>", Title: "T"})
	if err != nil || rev.Version != 1 {
		t.Fatalf("first save failed: %v %+v", err, rev)
	}
	if _, err := s.Save(ctx, docID, 1, Revision{Content: "<p>two</p>", Title: "T"}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	latest, err := s.Save(ctx, docID, 1, Revision{Content: "<p>stale</p>"})
	if !errors.Is(err, ErrVersionConflict) || latest.Version != 2 || latest.Content != "<p>two</p>" {
		t.Fatalf("expected conflict with latest revision, got %v %+v", err, latest)
	}

	got, err := s.Latest(ctx, docID)
	if err != nil || got.Version != 2 || got.Title != "T" {
		t.Fatalf("unexpected latest revision %v %+v", err, got)
	}
	versions, err := s.Versions(ctx, docID)
	if err != nil || len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
		t.Fatalf("unexpected versions %v %v", versions, err)
	}
}

func TestClientResponses(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, resp *autosave.Response, err error)
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"status":"success","version":5,"modified_datetime":"2024-03-01T10:00:00Z"}`,
			check: func(t *testing.T, resp *autosave.Response, err error) {
				if err != nil || resp.Version != 5 || resp.Modified.IsZero() {
					t.Fatalf("unexpected result %+v %v", resp, err)
				}
			},
		},
		{
			name:   "conflict",
			status: http.StatusConflict,
			body:   `{"html":"<div>theirs</div>","version":9}`,
			check: func(t *testing.T, _ *autosave.Response, err error) {
				var conflict *autosave.ConflictError
				if !errors.As(err, &conflict) || conflict.Version != 9 || conflict.Markup != "<div>theirs</div>" {
					t.Fatalf("expected conflict, got %v", err)
				}
			},
		},
		{
			name:   "server_error",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			check: func(t *testing.T, _ *autosave.Response, err error) {
				var transient *autosave.TransientError
				if !errors.As(err, &transient) || transient.StatusCode != http.StatusBadGateway {
					t.Fatalf("expected transient error, got %v", err)
				}
			},
		},
		{
			name:   "client_error_with_message",
			status: http.StatusBadRequest,
			body:   `{"message":"invalid version"}`,
			check: func(t *testing.T, _ *autosave.Response, err error) {
				if err == nil || err.Error() != "invalid version" {
					t.Fatalf("expected message from payload, got %v", err)
				}
			},
		},
		{
			name:   "malformed_success",
			status: http.StatusOK,
			body:   `not json`,
			check: func(t *testing.T, _ *autosave.Response, err error) {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
			},
		},
		{
			name:   "malformed_conflict",
			status: http.StatusConflict,
			body:   `{"html":"x"}`,
			check: func(t *testing.T, _ *autosave.Response, err error) {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/documents/"+docID {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("bad form: %v", err)
				}
				if r.PostForm.Get(FieldVersion) != "4" || r.PostForm.Get(FieldReference) != "ref" {
					t.Errorf("unexpected form %v", r.PostForm)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL, docID, time.Second, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("unable to create client: %v", err)
			}
			resp, err := c.Save(context.Background(), autosave.Request{
				Snapshot: autosave.Snapshot{Markup: "<p>x</p>", Reference: "ref"},
				Version:  4,
			})
			tc.check(t, resp, err)
		})
	}
}

func TestClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, docID, time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unable to create client: %v", err)
	}
	_, err = c.Save(context.Background(), autosave.Request{})
	var transient *autosave.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("ftp://example.com", docID, 0, nil); err == nil {
		t.Fatalf("unsupported scheme accepted")
	}
	if _, err := NewClient("http://example.com", "", 0, nil); err == nil {
		t.Fatalf("empty id accepted")
	}
}

func TestServerRoundTrip(t *testing.T) {
	log := zaptest.NewLogger(t)
	store := newStore(t)
	srv := httptest.NewServer(NewServer(store, log).Handler())
	defer srv.Close()
	ctx := context.Background()

	resp, err := http.Post(srv.URL+"/documents", "application/json", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status %d", resp.StatusCode)
	}

	mine, err := NewClient(srv.URL, docID, time.Second, log)
	if err != nil {
		t.Fatalf("unable to create client: %v", err)
	}
	saved, err := mine.Save(ctx, autosave.Request{Snapshot: autosave.Snapshot{Markup: "<p>mine</p>", Title: "Doc"}})
	if err != nil || saved.Version != 1 {
		t.Fatalf("save failed: %v %+v", err, saved)
	}

	// another writer advances the document
	if _, err := store.Save(ctx, docID, 1, Revision{Content: "<p>theirs & more</p>"}); err != nil {
		t.Fatalf("concurrent save failed: %v", err)
	}

	_, err = mine.Save(ctx, autosave.Request{Snapshot: autosave.Snapshot{Markup: "<p>mine again</p>"}, Version: 1})
	var conflict *autosave.ConflictError
	if !errors.As(err, &conflict) || conflict.Version != 2 {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(conflict.Markup, "&lt;p&gt;theirs &amp; more&lt;/p&gt;") {
		t.Fatalf("conflict markup must carry escaped revision: %s", conflict.Markup)
	}

	rev, err := mine.Load(ctx)
	if err != nil || rev.Version != 2 || rev.Content != "<p>theirs & more</p>" {
		t.Fatalf("load failed: %v %+v", err, rev)
	}
	if snap := rev.Snapshot(); snap.Markup != rev.Content {
		t.Fatalf("snapshot mismatch %+v", snap)
	}

	bad, err := http.PostForm(srv.URL+"/documents/"+docID, map[string][]string{FieldVersion: {"x"}})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", bad.StatusCode)
	}
}

func TestServerToken(t *testing.T) {
	log := zaptest.NewLogger(t)
	server := NewServer(newStore(t), log)
	server.SetToken("s3cret")
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	c, err := NewClient(srv.URL, docID, time.Second, log)
	if err != nil {
		t.Fatalf("unable to create client: %v", err)
	}
	if _, err := c.Save(context.Background(), autosave.Request{}); err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Fatalf("request without token accepted: %v", err)
	}
	c.SetToken("s3cret")
	if resp, err := c.Save(context.Background(), autosave.Request{}); err != nil || resp.Version != 1 {
		t.Fatalf("authorized save failed: %v", err)
	}
}
