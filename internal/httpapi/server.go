package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/repo"
	"github.com/hamed0406/pulsewatch/internal/scheduler"
)

// Registry is the target registry as seen by the API.
type Registry interface {
	List(ctx context.Context, owner domain.OwnerID) ([]domain.Target, error)
	ListAll(ctx context.Context) ([]domain.Target, error)
	Get(ctx context.Context, owner domain.OwnerID, id domain.TargetID) (*domain.Target, error)
	Resolve(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	Add(ctx context.Context, owner domain.OwnerID, name, rawURL string) (domain.Target, error)
	Update(ctx context.Context, owner domain.OwnerID, id domain.TargetID, name, rawURL string) (domain.Target, error)
	Remove(ctx context.Context, owner domain.OwnerID, id domain.TargetID) error
}

// SSLRefresher inspects one target and stores the result.
type SSLRefresher interface {
	RefreshOne(ctx context.Context, t domain.Target) error
}

type StatsProvider interface {
	Stats() scheduler.Stats
}

type Server struct {
	Logger    *zap.Logger
	Targets   Registry
	Records   repo.RecordStore
	SSL       repo.SSLStore
	Settings  repo.SettingsStore
	Refresher SSLRefresher
	Scheduler StatsProvider
	now       func() time.Time
}

func NewServer(l *zap.Logger, targets Registry, records repo.RecordStore, ssl repo.SSLStore, settings repo.SettingsStore, refresher SSLRefresher) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Logger:    l,
		Targets:   targets,
		Records:   records,
		SSL:       ssl,
		Settings:  settings,
		Refresher: refresher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Router wires public reads, owner reads and admin writes. Reads accept a
// public or admin key, writes need an admin key; each class has its own
// per-IP rate limit.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(apimw.RequestLogger(s.Logger))
	r.Use(chimw.Recoverer)

	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", apimw.OwnerHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// status page data, no owner needed
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst))
			r.Use(apimw.RequireAny(keys))
			r.Get("/public/status", s.handlePublicStatus)
			r.Get("/public/status/{id}", s.handlePublicHistory)
		})

		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst))
			r.Use(apimw.RequireAny(keys))
			r.Use(apimw.RequireOwner)
			r.Get("/targets", s.handleListTargets)
			r.Get("/targets/{id}", s.handleGetTarget)
			r.Get("/targets/{id}/status", s.handleTargetStatus)
			r.Get("/targets/{id}/rollup", s.handleTargetRollup)
			r.Get("/targets/{id}/ssl", s.handleTargetSSL)
			r.Get("/ssl/summary", s.handleSSLSummary)
			r.Get("/summary", s.handleSummary)
			r.Get("/settings", s.handleGetSettings)
		})

		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst))
			r.Use(apimw.RequireAdmin(keys))
			r.Use(apimw.RequireOwner)
			r.Post("/targets", s.handleAddTarget)
			r.Patch("/targets/{id}", s.handleUpdateTarget)
			r.Delete("/targets/{id}", s.handleDeleteTarget)
			r.Put("/settings", s.handlePutSettings)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if s.Scheduler != nil {
		out["scheduler"] = s.Scheduler.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Error   string                   `json:"error"`
	Details []domain.ValidationError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
