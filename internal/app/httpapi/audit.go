package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"github.com/mintline/edition_layer/internal/middleware"
	"github.com/mintline/edition_layer/pkg/logger"
)

type auditEntry struct {
	Time       time.Time `json:"time" db:"ts"`
	User       string    `json:"user" db:"user_id"`
	Role       string    `json:"role" db:"role"`
	TraceID    string    `json:"trace_id,omitempty" db:"trace_id"`
	Route      string    `json:"route" db:"route"`
	Path       string    `json:"path" db:"path"`
	Method     string    `json:"method" db:"method"`
	Status     int       `json:"status" db:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty" db:"remote_addr"`
	UserAgent  string    `json:"user_agent,omitempty" db:"user_agent"`
}

// AuditSink persists audit entries beyond the in-memory ring.
type AuditSink interface {
	Write(entry auditEntry) error
}

type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    AuditSink
	log     *logger.Logger
}

func newAuditLog(max int, sink AuditSink, log *logger.Logger) *auditLog {
	if max <= 0 {
		max = 200
	}
	if log == nil {
		log = logger.NewDefault("audit")
	}
	return &auditLog{max: max, sink: sink, log: log}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Write(entry); err != nil {
			l.log.WithError(err).WithField("route", entry.Route).Warn("audit sink write failed")
		}
	}
}

func (l *auditLog) listLimit(limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]auditEntry, limit)
	copy(out, l.entries[len(l.entries)-limit:])
	return out
}

// middleware records every state-changing request after it is served.
func (l *auditLog) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		l.add(auditEntry{
			Time:       time.Now().UTC(),
			User:       middleware.GetUserID(r.Context()),
			Role:       middleware.GetUserRole(r.Context()),
			TraceID:    logger.TraceID(r.Context()),
			Route:      route,
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusCapture struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusCapture) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusCapture) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// fileAuditSink appends audit entries as JSONL.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileAuditSink opens path for appending.
func NewFileAuditSink(path string) (AuditSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}

// postgresAuditSink inserts entries into the audit_log table.
type postgresAuditSink struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresAuditSink writes audit entries through db.
func NewPostgresAuditSink(db *sqlx.DB) AuditSink {
	return &postgresAuditSink{db: db, timeout: 2 * time.Second}
}

func (s *postgresAuditSink) Write(entry auditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_log (ts, user_id, role, trace_id, route, path, method, status, remote_addr, user_agent)
		VALUES (:ts, :user_id, :role, :trace_id, :route, :path, :method, :status, :remote_addr, :user_agent)
	`, entry)
	return err
}
