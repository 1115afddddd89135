// Package server exposes EPUB conversion and page preview over HTTP.
//
// Books are uploaded once and held as in-memory sessions addressed by
// UUID. Pages render on demand; chapter visibility edits re-derive the
// navigation without re-laying out the book, so they return immediately.
//
// # Routes
//
//	POST   /books                          upload an EPUB, returns the book handle
//	GET    /books/{id}                     book info and chapter list
//	GET    /books/{id}/pages/{n}.png       one rendered page (0-based)
//	GET    /books/{id}/container           the encoded XTC file
//	PATCH  /books/{id}/chapters/{cid}      body {"visible": bool}
//	DELETE /books/{id}                     drop the session
package server

import (
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkdot-dev/inkpress/pkg/errors"
	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/observability"
	"github.com/inkdot-dev/inkpress/pkg/pipeline"
)

// maxUploadBytes bounds the accepted EPUB size.
const maxUploadBytes = 128 << 20

// Server holds uploaded books as preview sessions.
type Server struct {
	runner *pipeline.Runner
	logger *log.Logger
	layout layout.Config

	mu       sync.RWMutex
	sessions map[string]*pipeline.Session
}

// New creates a server converting uploads under the given typography.
func New(runner *pipeline.Runner, logger *log.Logger, cfg layout.Config) *Server {
	return &Server{
		runner:   runner,
		logger:   logger,
		layout:   cfg,
		sessions: make(map[string]*pipeline.Session),
	}
}

// Handler builds the chi route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Post("/books", s.handleUpload)
	r.Route("/books/{id}", func(r chi.Router) {
		r.Get("/", s.handleInfo)
		r.Delete("/", s.handleDelete)
		r.Get("/pages/{page}.png", s.handlePage)
		r.Get("/container", s.handleContainer)
		r.Patch("/chapters/{chapter}", s.handleChapter)
	})
	return r
}

// observe reports every request to the server hooks and logs it.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.Server().OnRequest(r.Context(), r.Method, r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		observability.Server().OnResponse(r.Context(), r.Method, r.URL.Path, rec.status, duration)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", duration)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// =============================================================================
// Handlers
// =============================================================================

// bookInfo is the JSON shape returned for a session.
type bookInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Author   string        `json:"author,omitempty"`
	Pages    int           `json:"pages"`
	Chapters []chapterInfo `json:"chapters"`
	Warnings []string      `json:"warnings,omitempty"`
}

type chapterInfo struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Visible bool   `json:"visible"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeParseInput, err, "read upload"))
		return
	}

	session, warns, err := pipeline.NewSession(r.Context(), s.runner, pipeline.Options{
		EPUB:   data,
		Source: "upload",
		Layout: s.layout,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	info := s.info(id, session)
	for _, warn := range warns {
		info.Warnings = append(info.Warnings, warn.Error())
	}
	s.logger.Info("book uploaded", "id", id, "title", info.Title, "pages", info.Pages)
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := s.session(id)
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "unknown book %q", id))
		return
	}
	s.writeJSON(w, http.StatusOK, s.info(id, session))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "unknown book %q", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "unknown book"))
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		s.writeError(w, r, errors.New(errors.ErrCodePageNotFound, "bad page number %q", chi.URLParam(r, "page")))
		return
	}

	img, _, err := session.RenderPage(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		s.logger.Warn("write page", "error", err)
	}
}

func (s *Server) handleContainer(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "unknown book"))
		return
	}

	data, _, err := session.Container(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="book.xtc"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write container", "error", err)
	}
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := s.session(id)
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "unknown book %q", id))
		return
	}

	var body struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeParseInput, err, "decode body"))
		return
	}

	chapterID := chi.URLParam(r, "chapter")
	if err := session.SetChapterVisibility(chapterID, body.Visible); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("chapter toggled", "book", id, "chapter", chapterID, "visible", body.Visible)
	s.writeJSON(w, http.StatusOK, s.info(id, session))
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Server) session(id string) (*pipeline.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *Server) info(id string, session *pipeline.Session) bookInfo {
	b := session.Book()
	info := bookInfo{
		ID:     id,
		Title:  b.Title,
		Author: b.Author,
		Pages:  session.PageCount(),
	}
	for _, ch := range b.Chapters {
		info.Chapters = append(info.Chapters, chapterInfo{ID: ch.ID, Title: ch.Title, Visible: ch.Visible})
	}
	return info
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

// writeError maps error codes onto HTTP statuses and emits a JSON body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	observability.Server().OnError(r.Context(), r.Method, r.URL.Path, err)

	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound, errors.ErrCodePageNotFound, errors.ErrCodeChapterNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeParseEPUB, errors.ErrCodeParseOPF, errors.ErrCodeParseBook,
		errors.ErrCodeParseInput, errors.ErrCodeInvalidConfig:
		status = http.StatusBadRequest
	}

	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}
