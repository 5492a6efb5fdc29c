// Package httpapi exposes extraction and todo CRUD over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

const (
	corsAllowHeaders = "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token"
	corsAllowMethods = "GET,POST,PUT,DELETE,OPTIONS"
)

// Extractor is the extraction pipeline the server drives.
type Extractor interface {
	Extract(ctx context.Context, text string, mode extract.Mode) (*extract.Result, error)
}

// Server holds HTTP handlers and their dependencies.
type Server struct {
	extractor Extractor
	store     store.Store
	logger    *log.Logger
	schemas   map[string]*jsonschema.Schema
	now       func() time.Time
}

// New creates a server. A nil logger discards.
func New(ex Extractor, st store.Store, logger *log.Logger) (*Server, error) {
	if ex == nil || st == nil {
		return nil, errors.New("httpapi: extractor and store are required")
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{extractor: ex, store: st, logger: logger, schemas: schemas, now: time.Now}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)
	r.HandleFunc("/todos", s.handleListTodos).Methods(http.MethodGet)
	r.HandleFunc("/todos", s.handleCreateTodo).Methods(http.MethodPost)
	r.HandleFunc("/todos/{id}", s.handleGetTodo).Methods(http.MethodGet)
	r.HandleFunc("/todos/{id}", s.handleUpdateTodo).Methods(http.MethodPut)
	r.HandleFunc("/todos/{id}", s.handleDeleteTodo).Methods(http.MethodDelete)
	r.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	r.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return s.cors(r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// cors stamps every response and answers preflight requests for any path.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start).Round(time.Millisecond))
	})
}

type extractRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
	Save bool   `json:"save"`
}

type extractResponse struct {
	*extract.Result
	RunID string `json:"runId,omitempty"`
	Saved bool   `json:"saved,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := s.decode(w, r, schemaExtract, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text to extract is required")
		return
	}

	res, err := s.extractor.Extract(r.Context(), req.Text, extract.ParseMode(req.Mode))
	if errors.Is(err, extract.ErrEmptyText) {
		writeError(w, http.StatusBadRequest, "Text to extract is required")
		return
	}
	if err != nil {
		s.internalError(w, "extracting tasks", err)
		return
	}

	out := extractResponse{Result: res}
	if run, err := s.store.RecordRun(r.Context(), res, req.Text); err != nil {
		s.logger.Warn("recording run failed", "err", err)
	} else {
		out.RunID = run.ID
	}
	if req.Save {
		if err := s.store.SaveTasks(r.Context(), res.Todos); err != nil {
			s.internalError(w, "saving tasks", err)
			return
		}
		out.Saved = true
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOpts{
		Category: q.Get("category"),
		Priority: q.Get("priority"),
	}
	if v := q.Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid completed parameter")
			return
		}
		opts.Completed = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		opts.Limit = n
	}

	todos, err := s.store.ListTasks(r.Context(), opts)
	if err != nil {
		s.internalError(w, "listing todos", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todos": todos, "count": len(todos)})
}

type createRequest struct {
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Priority  string  `json:"priority"`
	DueDate   *string `json:"dueDate"`
	Completed bool    `json:"completed"`
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := s.decode(w, r, schemaCreate, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	task, ok := NewManualTask(req.Title, req.Category, req.Priority, req.DueDate, s.now())
	if !ok {
		writeError(w, http.StatusBadRequest, "Task title is required")
		return
	}
	task.Completed = req.Completed

	if err := s.store.SaveTasks(r.Context(), []extract.Task{task}); err != nil {
		s.internalError(w, "creating todo", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"todo": task})
}

// NewManualTask builds a hand-entered todo. Blank category or priority
// are filled from the keyword classifier; the id is a random UUID.
func NewManualTask(title, category, priority string, dueDate *string, now time.Time) (extract.Task, bool) {
	cls := extract.Classifier{Now: func() time.Time { return now }}.Classify(title)
	if strings.TrimSpace(category) == "" {
		category = cls.Category
	}
	if strings.TrimSpace(priority) == "" {
		priority = cls.Priority
	}
	due := cls.DueDate
	if dueDate != nil {
		due = *dueDate
	}
	task, ok := extract.Normalize(extract.Candidate{
		Title:    title,
		Category: category,
		Priority: priority,
		DueDate:  due,
	}, 0, extract.SourceManual, now)
	if ok {
		task.ID = uuid.NewString()
	}
	return task, ok
}

func (s *Server) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}
	if err != nil {
		s.internalError(w, "getting todo", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todo": task})
}

func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if err := s.decode(w, r, schemaUpdate, &fields); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	patch, err := patchFromFields(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.store.UpdateTask(r.Context(), mux.Vars(r)["id"], patch)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Todo not found")
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.internalError(w, "updating todo", err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"todo": task})
	}
}

// patchFromFields maps present JSON keys to a store patch. A null dueDate
// clears the date.
func patchFromFields(fields map[string]json.RawMessage) (store.TaskPatch, error) {
	var p store.TaskPatch
	str := func(key string) (*string, error) {
		raw, ok := fields[key]
		if !ok {
			return nil, nil
		}
		if string(raw) == "null" {
			empty := ""
			return &empty, nil
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &v, nil
	}

	var err error
	if p.Title, err = str("title"); err != nil {
		return p, err
	}
	if p.Category, err = str("category"); err != nil {
		return p, err
	}
	if p.Priority, err = str("priority"); err != nil {
		return p, err
	}
	if p.DueDate, err = str("dueDate"); err != nil {
		return p, err
	}
	if raw, ok := fields["completed"]; ok {
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return p, fmt.Errorf("completed: %w", err)
		}
		p.Completed = &b
	}
	return p, nil
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteTask(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}
	if err != nil {
		s.internalError(w, "deleting todo", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Todo deleted successfully"})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": extract.CategoryRules()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.internalError(w, "listing runs", err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// decode reads the body, validates it against the named schema and
// unmarshals it into dst.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schemaName string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return &requestError{Message: "request body too large or unreadable"}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return &requestError{Message: "Invalid request payload"}
	}
	if err := s.schemas[schemaName].Validate(doc); err != nil {
		return schemaError(err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &requestError{Message: "Invalid request payload"}
	}
	return nil
}

func (s *Server) writeDecodeError(w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeError(w, http.StatusBadRequest, re.Error())
		return
	}
	s.internalError(w, "decoding request", err)
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error(what, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   "Internal server error",
		"message": err.Error(),
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
