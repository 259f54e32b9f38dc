package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/cropdesk/cropdesk/internal/config"
	handlers "github.com/cropdesk/cropdesk/internal/handlers/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/mirror"
	"github.com/cropdesk/cropdesk/internal/reconciler"
	"github.com/cropdesk/cropdesk/internal/runner"
	"github.com/cropdesk/cropdesk/internal/service"
	"github.com/cropdesk/cropdesk/internal/store"
	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/cropdesk/cropdesk/internal/workspace"
	"github.com/cropdesk/cropdesk/pkg/metrics"
	"github.com/cropdesk/cropdesk/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	registry *tools.Registry
	mirror   mirror.Mirror
	listener net.Listener
}

// New returns a new instance of the cropdesk API server.
func New(
	cfg *config.Config,
	store store.Store,
	registry *tools.Registry,
	m mirror.Mirror,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		mirror:   m,
		listener: listener,
	}
}

// Handler builds the router with its middleware chain and the API routes.
func (s *Server) Handler() (http.Handler, error) {
	svc := s.cfg.Service
	router := chi.NewRouter()

	metricMiddleware, err := metrics.NewMiddleware("api_server")
	if err != nil {
		return nil, err
	}
	if err := metricMiddleware.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: svc.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	workspaces := workspace.NewManager(svc.DataDir, svc.StagingPath())
	historySrv := service.NewHistoryService(s.store, svc.HistoryPageSize)
	jobSrv := service.NewJobService(
		s.registry,
		workspaces,
		runner.New(svc.Interpreter),
		reconciler.New(svc.PollInterval),
		historySrv,
		s.mirror,
		service.Limits{MaxFiles: svc.MaxFiles, MaxFileSize: svc.MaxFileSize},
	).WithMaxConcurrentJobs(svc.MaxConcurrentJobs)

	h := handlers.NewServiceHandler(
		jobSrv,
		service.NewArtifactService(s.registry, workspaces),
		historySrv,
		service.NewToolService(s.registry),
	)
	return handlers.HandlerFromMux(h, router), nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	for _, t := range s.registry.List() {
		zap.S().Named("api_server").Infow("tool registered",
			"tool", t.Key,
			"root", t.Root(s.cfg.Service.DataDir),
			"executable", filepath.Join(t.Folder, t.Executable),
			"deadline", t.Deadline.String(),
		)
	}

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	srv := http.Server{
		Addr:              s.cfg.Service.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
