// File: internal/infra/adapters/backend/http_backend.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docchat/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.InferenceBackend = (*HTTPBackend)(nil)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend http %d", e.Code)
	}
	return fmt.Sprintf("backend http %d: %s", e.Code, e.Detail)
}

// HTTPBackend speaks the document-chat REST contract:
// POST /api/create-session, POST /api/chat, POST /api/upload-pdf.
type HTTPBackend struct {
	base   string
	client *http.Client
	logger *zerolog.Logger
}

func NewHTTPBackend(baseURL string, timeout time.Duration, logger *zerolog.Logger) (*HTTPBackend, error) {
	if baseURL == "" {
		return nil, errors.New("backend: empty base url")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http_backend").Logger()
	return &HTTPBackend{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: &l,
	}, nil
}

func (b *HTTPBackend) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/create-session", "", nil, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", errors.New("backend: create-session returned no session_id")
	}
	return out.SessionID, nil
}

func (b *HTTPBackend) SendMessage(ctx context.Context, req adapter.SendRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/chat", "application/json", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// UploadDocument streams r as the multipart field "file".
func (b *HTTPBackend) UploadDocument(ctx context.Context, filename string, r io.Reader) (adapter.UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	// unblocks the writer goroutine when the body was not fully read
	defer pr.Close()

	var out adapter.UploadResult
	if err := b.do(ctx, http.MethodPost, "/api/upload-pdf", mw.FormDataContentType(), pr, &out); err != nil {
		return adapter.UploadResult{}, err
	}
	if out.Filename == "" {
		out.Filename = filename
	}
	return out, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || (e.Detail == "" && e.Message == "") {
			e.Detail = strings.TrimSpace(string(raw))
		}
		if e.Detail == "" {
			e.Detail = e.Message
		}
		b.logger.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("backend returned error")
		return &StatusError{Code: resp.StatusCode, Detail: e.Detail}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s: decode: %w", path, err)
	}
	return nil
}
