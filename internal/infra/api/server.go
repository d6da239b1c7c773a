package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"docchat/internal/application"
	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	derror "docchat/internal/error"
	"docchat/internal/infra/adapters/backend"
	"docchat/internal/infra/logging"
)

// maxUploadBytes bounds a multipart upload, including form overhead.
const maxUploadBytes = 33 << 20

// Server exposes the chat facade over JSON. When a backend is given, the
// document-chat backend contract (/api/chat etc.) is served from it as well.
type Server struct {
	facade  *application.ChatFacade
	backend adapter.InferenceBackend
	timeout time.Duration
	auth    *AuthManager
	log     *zerolog.Logger
}

func NewServer(facade *application.ChatFacade, served adapter.InferenceBackend, timeout time.Duration, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{facade: facade, backend: served, timeout: timeout, log: &l}
}

// WithAuth puts the session API behind bearer tokens checked by a.
func (s *Server) WithAuth(a *AuthManager) *Server {
	s.auth = a
	return s
}

// Router builds the chi router with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/sessions", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Require())
		}
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/current", s.currentSession)
		r.Put("/current", s.selectSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Put("/messages", s.putMessages)
			r.Post("/messages", s.postMessage)
			r.Post("/documents", s.uploadDocument)
			r.Get("/mode", s.getMode)
		})
	})

	if s.backend != nil {
		r.Post("/api/create-session", s.backendCreateSession)
		r.Post("/api/chat", s.backendChat)
		r.Post("/api/upload-pdf", s.backendUpload)
	}
	return r
}

type listResponse struct {
	Items     []application.SessionSummary `json:"items"`
	CurrentID string                       `json:"currentId"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	items, cur := s.facade.ListSessions(r.Context())
	writeJSON(w, http.StatusOK, listResponse{Items: items, CurrentID: cur})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.facade.NewSession(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.facade.CurrentSession(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) selectSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := s.facade.SelectSession(r.Context(), req.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.facade.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.facade.DeleteSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Current *application.SessionView `json:"current"`
	}{v})
}

func (s *Server) putMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Messages == nil {
		req.Messages = []model.ChatMessage{}
	}
	changed, v, err := s.facade.PublishMessages(r.Context(), chi.URLParam(r, "id"), req.Messages)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Changed bool                     `json:"changed"`
		Session *application.SessionView `json:"session"`
	}{changed, v})
}

type replyResponse struct {
	Reply   *model.ChatMessage       `json:"reply,omitempty"`
	Session *application.SessionView `json:"session"`
	Error   string                   `json:"error,omitempty"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Async  bool   `json:"async"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")

	if req.Async {
		v, err := s.facade.SendAsync(r.Context(), id, req.Prompt)
		if err != nil && !isBackendFailure(err) {
			s.fail(w, r, err)
			return
		}
		resp := replyResponse{Session: v}
		if err != nil {
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	v, reply, err := s.facade.Send(r.Context(), id, req.Prompt)
	s.writeReply(w, r, v, reply, err)
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer f.Close()

	v, reply, err := s.facade.Upload(r.Context(), chi.URLParam(r, "id"), hdr.Filename, f)
	s.writeReply(w, r, v, reply, err)
}

func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	mode, err := s.facade.Mode(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.Mode{"mode": mode})
}

// writeReply answers 200 with the reply. When the backend failed and the
// error reply was already recorded, the session is returned with 502 (415
// for a rejected file type).
func (s *Server) writeReply(w http.ResponseWriter, r *http.Request, v *application.SessionView, reply model.ChatMessage, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, replyResponse{Reply: &reply, Session: v})
	case isBackendFailure(err) && v != nil:
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("backend failure")
		resp := replyResponse{Session: v, Error: err.Error()}
		if reply.Content != "" {
			resp.Reply = &reply
		}
		writeJSON(w, statusFor(err), resp)
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) backendCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.backend.CreateSession(r.Context())
	if err != nil {
		s.backendFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "message": "New session created"})
}

func (s *Server) backendChat(w http.ResponseWriter, r *http.Request) {
	var req adapter.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode == "" {
		req.Mode = model.ModeChat
	}
	reply, err := s.backend.SendMessage(r.Context(), req)
	if err != nil {
		s.backendFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply, "session_id": req.SessionID})
}

func (s *Server) backendUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer f.Close()

	res, err := s.backend.UploadDocument(r.Context(), hdr.Filename, f)
	if err != nil {
		s.backendFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// backendFail answers in the backend contract's {"detail": ...} shape.
func (s *Server) backendFail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	var se *backend.StatusError
	if errors.As(err, &se) {
		code = se.Code
	}
	if code >= 500 {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("backend route failed")
	}
	msg := err.Error()
	if errors.Is(err, domain.ErrNotFound) {
		msg = "Session not found"
	}
	writeDetail(w, code, msg)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case isBackendFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isBackendFailure(err error) bool {
	return derror.IsKind(err, derror.BackendRequest) || derror.IsKind(err, derror.Upload)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

// HTTPServer runs a handler until Shutdown.
type HTTPServer struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewHTTPServer(port int, h http.Handler, logger *zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

// Start blocks until the server stops; a clean Shutdown returns nil.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
