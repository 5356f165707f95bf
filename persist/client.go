// Package persist implements the persistence collaborator: HTTP client used
// by autosave and the revision store with its HTTP endpoint.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"composer/autosave"
)

const maxBodyBytes = 4 << 20

// Form fields of the save request.
const (
	FieldContent   = "content"
	FieldVersion   = "version"
	FieldTitle     = "title"
	FieldDate      = "date"
	FieldTimezone  = "timezone"
	FieldReference = "reference_image"
)

// ErrMalformed is reported when collaborator response can not be understood.
var ErrMalformed = errors.New("unexpected response from server")

type saveResponse struct {
	Status   string `json:"status"`
	Version  int64  `json:"version"`
	Modified string `json:"modified_datetime"`
	Message  string `json:"message"`
}

type conflictResponse struct {
	HTML    string `json:"html"`
	Version *int64 `json:"version"`
}

// Revision is a stored document state as served by the endpoint.
type Revision struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	Timezone  string    `json:"timezone"`
	Reference string    `json:"reference_image"`
	Modified  time.Time `json:"modified_datetime"`
}

// Snapshot converts revision into autosave snapshot.
func (r *Revision) Snapshot() autosave.Snapshot {
	return autosave.Snapshot{
		Markup:    r.Content,
		Title:     r.Title,
		Date:      r.Date,
		Timezone:  r.Timezone,
		Reference: r.Reference,
	}
}

// Client talks to the document endpoint of a single document.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	log      *zap.Logger
}

// NewClient creates client for document id served under baseURL.
func NewClient(baseURL, id string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: unsupported scheme", baseURL)
	}
	if id == "" {
		return nil, errors.New("document id is required")
	}
	return &Client{
		endpoint: u.JoinPath("documents", id).String(),
		http:     &http.Client{Timeout: timeout},
		log:      log.Named("client"),
	}, nil
}

// SetToken makes client present bearer token with every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Save posts snapshot with last known version.
func (c *Client) Save(ctx context.Context, req autosave.Request) (*autosave.Response, error) {
	form := url.Values{}
	form.Set(FieldContent, req.Markup)
	form.Set(FieldVersion, strconv.FormatInt(req.Version, 10))
	form.Set(FieldTitle, req.Title)
	form.Set(FieldDate, req.Date)
	form.Set(FieldTimezone, req.Timezone)
	form.Set(FieldReference, req.Reference)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	status, body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK:
		var decoded saveResponse
		if err := json.Unmarshal(body, &decoded); err != nil || decoded.Status != "success" {
			c.log.Debug("Malformed save response", zap.ByteString("body", body), zap.Error(err))
			return nil, ErrMalformed
		}
		resp := &autosave.Response{Version: decoded.Version}
		if decoded.Modified != "" {
			if t, err := time.Parse(time.RFC3339, decoded.Modified); err == nil {
				resp.Modified = t
			}
		}
		return resp, nil

	case status == http.StatusConflict:
		var decoded conflictResponse
		if err := json.Unmarshal(body, &decoded); err != nil || decoded.Version == nil {
			c.log.Debug("Malformed conflict response", zap.ByteString("body", body), zap.Error(err))
			return nil, ErrMalformed
		}
		return nil, &autosave.ConflictError{Markup: decoded.HTML, Version: *decoded.Version}

	case status >= http.StatusInternalServerError:
		return nil, &autosave.TransientError{StatusCode: status, Err: errors.New(message(body, status))}
	}
	return nil, errors.New(message(body, status))
}

// Load fetches latest revision of the document.
func (c *Client) Load(ctx context.Context) (*Revision, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	status, body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.New(message(body, status))
	}
	var rev Revision
	if err := json.Unmarshal(body, &rev); err != nil {
		return nil, ErrMalformed
	}
	return &rev, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); errors.Is(ctxErr, context.Canceled) {
			return 0, nil, ctxErr
		}
		return 0, nil, &autosave.TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &autosave.TransientError{StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, body, nil
}

// message extracts human readable error from response body, falling back to
// a generic one.
func message(body []byte, status int) string {
	var decoded saveResponse
	if err := json.Unmarshal(body, &decoded); err == nil && strings.TrimSpace(decoded.Message) != "" {
		return strings.TrimSpace(decoded.Message)
	}
	return fmt.Sprintf("request failed (status %d)", status)
}
