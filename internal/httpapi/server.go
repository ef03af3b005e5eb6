package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/events"
	apimw "github.com/hamed0406/servermon/internal/httpapi/middleware"
	"github.com/hamed0406/servermon/internal/monitor"
)

// Monitor is satisfied by *monitor.Monitor.
type Monitor interface {
	Endpoints(ctx context.Context) ([]domain.Endpoint, error)
	Endpoint(ctx context.Context, id domain.EndpointID) (domain.Endpoint, error)
	AddEndpoint(ctx context.Context, name, address string, ports []uint16) (domain.Endpoint, error)
	EditEndpoint(ctx context.Context, id domain.EndpointID, name, address string, ports []uint16) (domain.Endpoint, error)
	RemoveEndpoint(ctx context.Context, id domain.EndpointID) error
	TriggerCheckNow()
	SetInterval(seconds uint64)
	Policy() monitor.PolicyView
	Export(ctx context.Context) error
	Import(ctx context.Context) error
	ExportData(ctx context.Context) ([]byte, error)
	ImportData(ctx context.Context, data []byte) error
	StatePath() string
	Subscribe() (<-chan events.Event, func())
}

type Server struct {
	Logger  *zap.Logger
	Monitor Monitor
	Now     func() time.Time
}

func NewServer(l *zap.Logger, m Monitor) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Monitor: m, Now: time.Now}
}

type RouterOptions struct {
	Keys           apimw.Keys
	AllowedOrigins []string // empty disables CORS
	CheckRPM       int      // rate limit for POST /api/check; 0 disables
	CheckBurst     int
}

func (s *Server) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAny(opts.Keys))
		r.Get("/api/endpoints", s.handleListEndpoints)
		r.Get("/api/endpoints/{id}", s.handleGetEndpoint)
		r.Get("/api/policy", s.handleGetPolicy)
		r.Get("/api/events", s.handleEvents(opts.AllowedOrigins))
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAdmin(opts.Keys))
		r.Post("/api/endpoints", s.handleAddEndpoint)
		r.Put("/api/endpoints/{id}", s.handleEditEndpoint)
		r.Delete("/api/endpoints/{id}", s.handleRemoveEndpoint)
		r.Put("/api/policy", s.handleSetPolicy)
		r.With(apimw.RateLimit(opts.CheckRPM, opts.CheckBurst)).Post("/api/check", s.handleCheckNow)

		r.Get("/api/state", s.handleDownloadState)
		r.Put("/api/state", s.handleUploadState)
		r.Post("/api/state/export", s.handleExportState)
		r.Post("/api/state/import", s.handleImportState)
	})

	return r
}
