// Package api serves tests, test runs and their properties over REST.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/property"
)

// Store is the persistence the server needs; *database.DB implements it
type Store interface {
	CreateTest(test *model.Test, defs []*property.Descriptor) error
	CopyTest(src string, srcVersion int, name, description string) (*model.Test, error)
	GetTest(name string) (*model.Test, error)
	ListTests(prefix string) ([]*model.Test, error)
	UpdateTest(oldName string, version int, name, description string) (*model.Test, error)
	DeleteTest(name string) error

	CreateRun(testName string, run *model.Run) error
	CopyRun(testName, src string, srcVersion int, name, description string) (*model.Run, error)
	GetRun(testName, runName string) (*model.Run, error)
	GetRunSummary(testName, runName string) (*model.Run, error)
	ListRuns(testName string, state model.RunState) ([]*model.Run, error)
	UpdateRun(testName, oldName string, version int, name, description string) (*model.Run, error)
	DeleteRun(testName, runName string) error
	ScheduleRun(testName, runName string, version int, at time.Time) (*model.Run, error)
	TerminateRun(testName, runName string) (*model.Run, error)
	ReportProgress(testName, runName string, progress float64, success, fail int64) (*model.Run, error)

	GetProperty(testName, runName, name string) (*property.Descriptor, error)
	SetProperty(testName, runName, name string, version int, value *property.Value) (*property.Descriptor, error)

	AddRunLog(testName, runName string, level model.LogLevel, msg string) (*model.RunLog, error)
	ListRunLogs(testName, runName string, since time.Time, limit int) ([]*model.RunLog, error)

	WriteTestDef(def *model.TestDef) error
	GetTestDef(release string, schema int) (*model.TestDef, error)
	ListTestDefs(activeOnly bool, skip, count int) ([]*model.TestDef, error)

	RegisterDriver(d *model.Driver, ttl time.Duration) error
	RefreshDriver(id string, ttl time.Duration) (*model.Driver, error)
	UnregisterDriver(id string) error
	ListDrivers(f model.DriverFilter) ([]*model.Driver, error)
	TestDrivers(testName string, activeOnly bool) ([]*model.Driver, error)
}

// Server is the REST front end of a Store
type Server struct {
	*gin.Engine

	store   Store
	logger  *zap.Logger
	version string
	started time.Time
}

// NewServer builds the router. A nil logger disables request logging.
func NewServer(store Store, logger *zap.Logger, version string) *Server {
	gin.SetMode(gin.ReleaseMode)
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{store: store, logger: logger, version: version, started: time.Now()}
	s.injectMiddlewares()
	s.injectRouters()
	return s
}

func (s *Server) injectMiddlewares() {
	g := gin.New()
	g.Use(RequestID())
	g.Use(RequestLog(s.logger))
	g.Use(gin.Recovery())
	s.Engine = g
}

func (s *Server) injectRouters() {
	g := s.Engine

	g.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Invalid path: %s", c.Request.URL.Path)
	})
	g.HandleMethodNotAllowed = true
	g.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method not allowed: %s %s", c.Request.Method, c.Request.URL.Path)
	})

	v1 := g.Group(model.BasePath)
	v1.GET("/status", s.status)

	tests := v1.Group("/tests")
	{
		tests.GET("", s.listTests)
		tests.POST("", s.createTest)
		tests.GET("/:test", s.getTest)
		tests.PUT("/:test", s.updateTest)
		tests.DELETE("/:test", s.deleteTest)
		tests.GET("/:test/props/:prop", s.getProperty)
		tests.PUT("/:test/props/:prop", s.setProperty)
		tests.GET("/:test/drivers", s.testDrivers)
	}

	defs := v1.Group("/test-defs")
	{
		defs.GET("", s.listTestDefs)
		defs.POST("", s.writeTestDef)
		defs.GET("/:release/:schema", s.getTestDef)
	}

	drivers := v1.Group("/drivers")
	{
		drivers.GET("", s.listDrivers)
		drivers.POST("", s.registerDriver)
		drivers.PUT("/:id", s.refreshDriver)
		drivers.DELETE("/:id", s.unregisterDriver)
	}

	runs := tests.Group("/:test/runs")
	{
		runs.GET("", s.listRuns)
		runs.POST("", s.createRun)
		runs.GET("/:run", s.getRun)
		runs.PUT("/:run", s.updateRun)
		runs.DELETE("/:run", s.deleteRun)
		runs.GET("/:run/summary", s.getRunSummary)
		runs.GET("/:run/props/:prop", s.getProperty)
		runs.PUT("/:run/props/:prop", s.setProperty)
		runs.POST("/:run/schedule", s.scheduleRun)
		runs.POST("/:run/terminate", s.terminateRun)
		runs.POST("/:run/progress", s.reportProgress)
		runs.GET("/:run/logs", s.listRunLogs)
		runs.POST("/:run/logs", s.addRunLog)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Engine, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		s.logger.Sugar().Infof("Listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
