package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nodeos/storaged/pkg/flist"
	"github.com/nodeos/storaged/pkg/log"
	"github.com/nodeos/storaged/pkg/metrics"
	"github.com/nodeos/storaged/pkg/storage"
)

// Mounter is the slice of the flist engine the API exposes.
type Mounter interface {
	Mount(ctx context.Context, name, url string, opts flist.MountOptions) (string, error)
	Unmount(ctx context.Context, name string) error
	Update(ctx context.Context, name string, size uint64) error
	Exists(name string) (bool, error)
	HashOfMount(ctx context.Context, name string) (string, error)
	List(ctx context.Context) ([]string, error)
}

// Server exposes the storage manager and the flist engine over HTTP. It
// carries two routers: the full one for the TCP listener and a read-only
// one for the local socket.
type Server struct {
	router *gin.Engine
	local  *gin.Engine

	http *http.Server
	unix *http.Server

	storage storage.Manager
	flist   Mounter

	logger zerolog.Logger
}

// NewServer creates the API server over the given backends.
func NewServer(store storage.Manager, engine Mounter, version string) *Server {
	gin.SetMode(gin.ReleaseMode)
	metrics.SetVersion(version)

	s := &Server{
		storage: store,
		flist:   engine,
		logger:  log.WithComponent("api"),
	}
	s.router = s.buildRouter(false)
	s.local = s.buildRouter(true)

	s.http = &http.Server{
		Handler: s.router,
		// no write timeout, flist mounts block on downloads
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.unix = &http.Server{
		Handler:           s.local,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) buildRouter(readOnly bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), requestMetrics())
	if readOnly {
		router.Use(ReadOnly())
	}

	router.GET("/health", gin.WrapF(metrics.HealthHandler()))
	router.GET("/ready", gin.WrapF(metrics.ReadyHandler()))
	router.GET("/live", gin.WrapF(metrics.LivenessHandler()))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	s.registerVolumeRoutes(v1)
	s.registerDiskRoutes(v1)
	s.registerDeviceRoutes(v1)
	s.registerFlistRoutes(v1)

	return router
}

// Start serves the full API on addr. It blocks until Stop is called.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info().Str("addr", addr).Msg("api listening")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartUnix serves the read-only API on a local socket. A stale socket
// file from a previous run is removed first.
func (s *Server) StartUnix(path string) error {
	_ = os.Remove(path)

	lis, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.logger.Info().Str("socket", path).Msg("local api listening")

	err = s.unix.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if uerr := s.unix.Shutdown(ctx); err == nil {
		err = uerr
	}
	return err
}
