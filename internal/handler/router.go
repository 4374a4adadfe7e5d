package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/care-portal/backend/internal/handler/appointment"
	"github.com/zhouzirui/care-portal/backend/internal/handler/chat"
	"github.com/zhouzirui/care-portal/backend/internal/handler/prescription"
	"github.com/zhouzirui/care-portal/backend/internal/handler/schedule"
	"github.com/zhouzirui/care-portal/backend/internal/handler/stream"
	"github.com/zhouzirui/care-portal/backend/internal/handler/workspace"
	"github.com/zhouzirui/care-portal/backend/internal/middleware"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

// RouterConfig carries what NewRouter needs.
type RouterConfig struct {
	Workspaces     workspace.Provider
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	MaxFileBytes   int64
	Logger         *logging.Logger
}

// NewRouter wires HTTP routes to the portal workspaces.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.ClientID)

		schedule.New(cfg.Workspaces).RegisterRoutes(api)
		appointment.New(cfg.Workspaces).RegisterRoutes(api)
		prescription.New(cfg.Workspaces, cfg.MaxFileBytes).RegisterRoutes(api)
		chat.New(cfg.Workspaces).RegisterRoutes(api)
		chat.NewWebSocketHandler(cfg.Workspaces, cfg.AllowedOrigins, logger).RegisterRoutes(api)
		stream.New(cfg.Workspaces, logger).RegisterRoutes(api)
	})

	return r
}
