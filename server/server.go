package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/HavvokLab/solax-cloud/integration"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// EntryManager is the lifecycle surface the admin API drives.
type EntryManager interface {
	AddEntry(ctx context.Context, input integration.UserInput) (integration.FlowResult, error)
	Entries() []integration.EntryView
	Entry(entryID string) (integration.EntryView, error)
	Sensors(entryID string) ([]model.SensorState, error)
	Refresh(ctx context.Context, entryID string) (model.Snapshot, error)
	RemoveEntry(entryID string) error
}

type RestfulServer struct {
	Server   *gin.Engine
	Manager  EntryManager
	Registry *prometheus.Registry
	logger   zerolog.Logger
}

func NewRestfulServer(manager EntryManager, registry *prometheus.Registry) *RestfulServer {
	if !logger.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	rs := &RestfulServer{
		Server:   gin.New(),
		Manager:  manager,
		Registry: registry,
		logger:   logger.New("server.log"),
	}
	rs.Server.Use(gin.Recovery(), rs.requestLogger())
	rs.Setup()

	return rs
}

func (rs *RestfulServer) Setup() {
	rs.Server.GET("/healthz", rs.HealthCheck)
	if rs.Registry != nil {
		rs.Server.GET("/metrics", gin.WrapH(promhttp.HandlerFor(rs.Registry, promhttp.HandlerOpts{})))
	}

	rs.Server.GET("/entries", rs.ListEntries)
	rs.Server.POST("/entries", rs.CreateEntry)

	entries := rs.Server.Group("/entries/:entry_id")
	{
		entries.GET("", rs.GetEntry)
		entries.DELETE("", rs.DeleteEntry)
		entries.GET("/sensors", rs.GetSensors)
		entries.POST("/refresh", rs.RefreshEntry)
	}
}

// Run serves on address until ctx is done.
func (rs *RestfulServer) Run(ctx context.Context, address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           rs.Server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rs.logger.Info().Str("address", address).Msg("RestfulServer::Run() - listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (rs *RestfulServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		rs.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("RestfulServer::request")
	}
}
