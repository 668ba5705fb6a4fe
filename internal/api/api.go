// Package api exposes the scan engine over HTTP under /sh-api.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/socialhunt/internal/addons"
	"github.com/tdh8316/socialhunt/internal/jobs"
	"github.com/tdh8316/socialhunt/internal/netsafe"
	"github.com/tdh8316/socialhunt/internal/scan"
)

const (
	DefaultMaxUsernameLen = 64
	// MaxUploadBytes bounds a whole face-search request body.
	MaxUploadBytes = 32 << 20
)

// ReloadFunc rebuilds the catalog from disk.
type ReloadFunc func() (*scan.Catalog, error)

type Options struct {
	AdminToken     string
	MaxUsernameLen int
	DemoMode       bool
	// Guard vets avatar fetches of face-search jobs; nil uses the default.
	Guard *netsafe.Guard
}

type Server struct {
	engine *scan.Engine
	jobs   *jobs.Manager
	reload ReloadFunc
	opts   Options
	log    logrus.FieldLogger
}

func New(engine *scan.Engine, manager *jobs.Manager, reload ReloadFunc, opts Options, log logrus.FieldLogger) *Server {
	if opts.MaxUsernameLen <= 0 {
		opts.MaxUsernameLen = DefaultMaxUsernameLen
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{engine: engine, jobs: manager, reload: reload, opts: opts, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/sh-api", func(r chi.Router) {
		r.Get("/providers", s.handleProviders)
		r.Post("/providers/reload", s.handleReload)
		r.Get("/addons", s.handleAddons)
		r.Get("/whoami", s.handleWhoami)
		r.Post("/search", s.handleSearch)
		r.Post("/face-search", s.handleFaceSearch)
		r.Get("/jobs/{id}", s.handleJob)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.engine.Catalog().ProviderNames()})
}

func (s *Server) handleAddons(w http.ResponseWriter, _ *http.Request) {
	cat := s.engine.Catalog()
	enabled := cat.Enabled
	if enabled == nil {
		enabled = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"addons": cat.AddonNames(), "enabled": enabled})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.opts.AdminToken == "" {
		writeError(w, http.StatusForbidden, "admin token not configured")
		return
	}
	got := r.Header.Get("X-Plugin-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}
	if s.reload == nil {
		writeError(w, http.StatusNotImplemented, "reload not available")
		return
	}

	cat, err := s.reload()
	if err != nil {
		s.log.WithError(err).Error("catalog reload failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.engine.SetCatalog(cat)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "providers": cat.ProviderNames()})
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	xri := strings.TrimSpace(r.Header.Get("X-Real-IP"))

	ip, via := r.RemoteAddr, "socket"
	switch {
	case xff != "":
		ip, _, _ = strings.Cut(xff, ",")
		ip, via = strings.TrimSpace(ip), "x-forwarded-for"
	case xri != "":
		ip, via = xri, "x-real-ip"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_ip":  ip,
		"via":        via,
		"user_agent": r.UserAgent(),
		"demo_mode":  s.opts.DemoMode,
	})
}

type searchRequest struct {
	Username  string   `json:"username"`
	Providers []string `json:"providers"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	username, msg := s.checkUsername(req.Username)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	id, err := s.jobs.Start(username, req.Providers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

// checkUsername trims raw and returns the reason it is rejected, if any.
// Length is counted in characters.
func (s *Server) checkUsername(raw string) (string, string) {
	username := strings.TrimSpace(raw)
	switch {
	case username == "":
		return "", "username required"
	case utf8.RuneCountInString(username) > s.opts.MaxUsernameLen:
		return "", "username too long"
	}
	return username, ""
}

// handleFaceSearch takes a multipart form with a username and one or more
// reference images ("files") and starts a job that also runs avatar_match
// against them.
func (s *Server) handleFaceSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	username, msg := s.checkUsername(r.FormValue("username"))
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	dir, err := os.MkdirTemp("", "socialhunt-face-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save uploaded file")
		return
	}
	// References are hashed by NewAvatarMatch, the files are not needed afterwards.
	defer os.RemoveAll(dir)

	paths, err := saveUploads(dir, files)
	if err != nil {
		s.log.WithError(err).Warn("face-search upload")
		writeError(w, http.StatusInternalServerError, "failed to save uploaded file")
		return
	}
	match, err := addons.NewAvatarMatch(addons.NewAvatarFingerprint(s.opts.Guard), paths...)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable image: "+err.Error())
		return
	}

	id, err := s.jobs.Start(username, formList(r.MultipartForm.Value["providers"]), match)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func saveUploads(dir string, files []*multipart.FileHeader) ([]string, error) {
	paths := make([]string, 0, len(files))
	seen := map[string]bool{}
	for i, fh := range files {
		name := safeName(fh.Filename)
		if seen[name] {
			name = fmt.Sprintf("%d-%s", i, name)
		}
		seen[name] = true

		path := filepath.Join(dir, name)
		if err := saveUpload(fh, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// safeName keeps the base name of an upload, limited to [A-Za-z0-9._-].
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	clean = strings.TrimLeft(clean, ".")
	if clean == "" {
		return "upload"
	}
	return clean
}

// formList flattens repeated and comma-separated form values.
func formList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}

	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"), limit)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}
