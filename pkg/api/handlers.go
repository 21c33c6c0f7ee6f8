package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/names"
	"github.com/mslinn/bm-console/pkg/property"
)

// fail answers with the status and reason matching err
func (s *Server) fail(c *gin.Context, err error) {
	code := apierr.StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed", "path", c.Request.URL.Path, "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, model.ErrorResponse{Reason: apierr.ReasonOf(err), Message: err.Error()})
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.fail(c, fmt.Errorf("%w: malformed request body: %v", apierr.ErrInvalid, err))
		return false
	}
	return true
}

func (s *Server) status(c *gin.Context) {
	tests, err := s.store.ListTests("")
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Tests:   len(tests),
	})
}

func (s *Server) listTests(c *gin.Context) {
	tests, err := s.store.ListTests(c.Query("prefix"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if tests == nil {
		tests = []*model.Test{}
	}
	c.JSON(http.StatusOK, tests)
}

func (s *Server) createTest(c *gin.Context) {
	var req model.TestRequest
	if !s.bind(c, &req) {
		return
	}
	if err := names.ValidateTestName(req.Name); err != nil {
		s.fail(c, err)
		return
	}

	if req.CopyOf != "" {
		test, err := s.store.CopyTest(req.CopyOf, req.Version, req.Name, req.Description)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, test)
		return
	}

	defs := req.Properties
	if len(defs) == 0 && req.Release != "" {
		def, err := s.store.GetTestDef(req.Release, req.Schema)
		if err != nil {
			s.fail(c, err)
			return
		}
		defs = def.Properties
	}
	if err := checkDefinitions(defs); err != nil {
		s.fail(c, err)
		return
	}
	test := &model.Test{Name: req.Name, Description: req.Description, Release: req.Release, Schema: req.Schema}
	if err := s.store.CreateTest(test, defs); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, test)
}

// checkDefinitions rejects illegal or duplicate property names
func checkDefinitions(defs []*property.Descriptor) error {
	var result *multierror.Error
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := names.ValidatePropertyName(d.Name); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if seen[d.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate property '%s'", d.Name))
		}
		seen[d.Name] = true
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrInvalid, err)
	}
	return nil
}

func (s *Server) getTest(c *gin.Context) {
	test, err := s.store.GetTest(c.Param("test"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

func (s *Server) updateTest(c *gin.Context) {
	var req model.UpdateRequest
	if !s.bind(c, &req) {
		return
	}
	if err := names.ValidateTestName(req.Name); err != nil {
		s.fail(c, err)
		return
	}
	test, err := s.store.UpdateTest(c.Param("test"), req.Version, req.Name, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

func (s *Server) deleteTest(c *gin.Context) {
	if err := s.store.DeleteTest(c.Param("test")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getProperty serves test properties, and run properties when the route
// carries a run
func (s *Server) getProperty(c *gin.Context) {
	d, err := s.store.GetProperty(c.Param("test"), c.Param("run"), c.Param("prop"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) setProperty(c *gin.Context) {
	test, run, name := c.Param("test"), c.Param("run"), c.Param("prop")
	var req model.PropertyRequest
	if !s.bind(c, &req) {
		return
	}

	if req.Value != nil {
		current, err := s.store.GetProperty(test, run, name)
		if err != nil {
			s.fail(c, err)
			return
		}
		current.Value = *req.Value
		if err := property.Validate(current).Err(name); err != nil {
			s.fail(c, err)
			return
		}
	}

	saved, err := s.store.SetProperty(test, run, name, req.Version, req.Value)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Param("test"), model.RunState(c.Query("state")))
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) createRun(c *gin.Context) {
	test := c.Param("test")
	var req model.RunRequest
	if !s.bind(c, &req) {
		return
	}
	if err := names.ValidateTestRunName(req.Name); err != nil {
		s.fail(c, err)
		return
	}

	if req.CopyOf != "" {
		run, err := s.store.CopyRun(test, req.CopyOf, req.Version, req.Name, req.Description)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, run)
		return
	}

	run := &model.Run{Name: req.Name, Description: req.Description}
	if err := s.store.CreateRun(test, run); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Param("test"), c.Param("run"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getRunSummary(c *gin.Context) {
	run, err := s.store.GetRunSummary(c.Param("test"), c.Param("run"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) updateRun(c *gin.Context) {
	var req model.UpdateRequest
	if !s.bind(c, &req) {
		return
	}
	if err := names.ValidateTestRunName(req.Name); err != nil {
		s.fail(c, err)
		return
	}
	run, err := s.store.UpdateRun(c.Param("test"), c.Param("run"), req.Version, req.Name, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) deleteRun(c *gin.Context) {
	if err := s.store.DeleteRun(c.Param("test"), c.Param("run")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) scheduleRun(c *gin.Context) {
	var req model.ScheduleRequest
	if !s.bind(c, &req) {
		return
	}
	at := time.Now()
	if req.Scheduled != nil {
		at = *req.Scheduled
	}
	run, err := s.store.ScheduleRun(c.Param("test"), c.Param("run"), req.Version, at)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logRunEvent(run, model.LevelInfo, fmt.Sprintf("Test run scheduled for %s", at.UTC().Format(time.RFC3339)))
	c.JSON(http.StatusOK, run)
}

func (s *Server) terminateRun(c *gin.Context) {
	run, err := s.store.TerminateRun(c.Param("test"), c.Param("run"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logRunEvent(run, model.LevelWarn, "Test run terminated: "+run.Test+"."+run.Name)
	c.JSON(http.StatusOK, run)
}

func (s *Server) reportProgress(c *gin.Context) {
	var req model.ProgressRequest
	if !s.bind(c, &req) {
		return
	}
	run, err := s.store.ReportProgress(c.Param("test"), c.Param("run"), req.Progress, req.ResultsSuccess, req.ResultsFail)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) listRunLogs(c *gin.Context) {
	var since time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.fail(c, fmt.Errorf("%w: since must be an RFC 3339 time: %v", apierr.ErrInvalid, err))
			return
		}
		since = t
	}
	limit := 0
	if v := c.Query("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(c, fmt.Errorf("%w: count must be a number: %v", apierr.ErrInvalid, err))
			return
		}
		limit = n
	}

	logs, err := s.store.ListRunLogs(c.Param("test"), c.Param("run"), since, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if logs == nil {
		logs = []*model.RunLog{}
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) addRunLog(c *gin.Context) {
	var req model.LogRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Level == "" {
		req.Level = model.LevelInfo
	}
	entry, err := s.store.AddRunLog(c.Param("test"), c.Param("run"), req.Level, req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// logRunEvent records a lifecycle change in the run's own log
func (s *Server) logRunEvent(run *model.Run, level model.LogLevel, msg string) {
	if _, err := s.store.AddRunLog(run.Test, run.Name, level, msg); err != nil {
		s.logger.Sugar().Warnw("Failed to record run event", "run", run.Test+"."+run.Name, "error", err)
	}
}
