package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/events"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/serialport"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/service"
)

// DeviceLink is the part of serialport.Link exposed over HTTP.
type DeviceLink interface {
	ListPorts() []serialport.PortInfo
	RefreshPorts() []serialport.PortInfo
	Status() serialport.Status
	Connect(port string, baud int, readTimeout time.Duration) (serialport.ConnectResult, error)
	Disconnect() (string, error)
}

// DeviceDriver is the part of fingerprint.Driver exposed over HTTP.
type DeviceDriver interface {
	Capture(kind string, id, maxRetries int, perTryTimeout time.Duration) (fingerprint.Result, error)
	Cancel() error
}

type Dependencies struct {
	Logger            zerolog.Logger
	Addr              string
	Link              DeviceLink
	Driver            DeviceDriver
	AccessService     *service.AccessService
	EnrollmentService *service.EnrollmentService
	Registry          *service.EntityRegistry
	Broker            *events.Broker

	// ReadTimeout is applied to the serial port on connect.
	ReadTimeout time.Duration
	// CaptureTimeout bounds each test-capture attempt.
	CaptureTimeout time.Duration
}

type Server struct {
	httpServer     *http.Server
	logger         zerolog.Logger
	link           DeviceLink
	driver         DeviceDriver
	access         *service.AccessService
	enrollment     *service.EnrollmentService
	registry       *service.EntityRegistry
	broker         *events.Broker
	readTimeout    time.Duration
	captureTimeout time.Duration
}

func NewServer(d Dependencies) *Server {
	if d.ReadTimeout <= 0 {
		d.ReadTimeout = serialport.DefaultReadTimeout
	}
	if d.CaptureTimeout <= 0 {
		d.CaptureTimeout = fingerprint.DefaultEnrollTimeout
	}

	s := &Server{
		logger:         d.Logger.With().Str("component", "http").Logger(),
		link:           d.Link,
		driver:         d.Driver,
		access:         d.AccessService,
		enrollment:     d.EnrollmentService,
		registry:       d.Registry,
		broker:         d.Broker,
		readTimeout:    d.ReadTimeout,
		captureTimeout: d.CaptureTimeout,
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/device", func(r chi.Router) {
		r.Get("/ports", s.handleListPorts)
		r.Get("/ports/refresh", s.handleRefreshPorts)
		r.Get("/status", s.handleStatus)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/test-capture", s.handleTestCapture)
		r.Post("/cancel", s.handleCancel)
	})

	for path, kind := range map[string]string{"/v1/students": "student", "/v1/professors": "professor"} {
		r.Route(path, func(r chi.Router) {
			r.Get("/", s.handleListEntities(kind))
			r.Post("/", s.handleRegister(kind))
			r.Get("/{id}", s.handleGetEntity(kind))
		})
	}

	r.Route("/v1/access", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)
		r.Get("/logs", s.handleLogs)
		r.Get("/stream", s.handleStream)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
