package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/model"
)

// queryInt reads an optional integer query parameter
func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number: %v", apierr.ErrInvalid, key, err)
	}
	return n, nil
}

// queryBool reads an optional boolean query parameter
func queryBool(c *gin.Context, key string, fallback bool) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false: %v", apierr.ErrInvalid, key, err)
	}
	return b, nil
}

func (s *Server) listTestDefs(c *gin.Context) {
	activeOnly, err := queryBool(c, "activeOnly", true)
	if err != nil {
		s.fail(c, err)
		return
	}
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	count, err := queryInt(c, "count", 0)
	if err != nil {
		s.fail(c, err)
		return
	}

	defs, err := s.store.ListTestDefs(activeOnly, skip, count)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (s *Server) getTestDef(c *gin.Context) {
	schema, err := strconv.Atoi(c.Param("schema"))
	if err != nil {
		s.fail(c, fmt.Errorf("%w: schema must be a number: %v", apierr.ErrInvalid, err))
		return
	}
	def, err := s.store.GetTestDef(c.Param("release"), schema)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) writeTestDef(c *gin.Context) {
	var req model.TestDefRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Release == "" {
		s.fail(c, fmt.Errorf("%w: a test definition needs a release", apierr.ErrInvalid))
		return
	}
	if err := checkDefinitions(req.Properties); err != nil {
		s.fail(c, err)
		return
	}

	def := &model.TestDef{Release: req.Release, Schema: req.Schema, Description: req.Description, Properties: req.Properties}
	if err := s.store.WriteTestDef(def); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Sugar().Infow("Test definition registered", "release", def.Release, "schema", def.Schema, "properties", len(def.Properties))
	c.JSON(http.StatusCreated, def)
}

func (s *Server) listDrivers(c *gin.Context) {
	activeOnly, err := queryBool(c, "activeOnly", true)
	if err != nil {
		s.fail(c, err)
		return
	}
	f := model.DriverFilter{Release: c.Query("release"), ActiveOnly: activeOnly}
	if c.Query("schema") != "" {
		schema, err := queryInt(c, "schema", 0)
		if err != nil {
			s.fail(c, err)
			return
		}
		f.Schema = &schema
	}

	drivers, err := s.store.ListDrivers(f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, drivers)
}

func (s *Server) testDrivers(c *gin.Context) {
	activeOnly, err := queryBool(c, "activeOnly", true)
	if err != nil {
		s.fail(c, err)
		return
	}
	drivers, err := s.store.TestDrivers(c.Param("test"), activeOnly)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, drivers)
}

// registerDriver records the caller as a driver. Without an address in the
// request the client IP is used.
func (s *Server) registerDriver(c *gin.Context) {
	var req model.DriverRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Release == "" {
		s.fail(c, fmt.Errorf("%w: a driver needs a release", apierr.ErrInvalid))
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	d := &model.Driver{Release: req.Release, Schema: req.Schema, IPAddress: req.IPAddress, Hostname: req.Hostname}
	if err := s.store.RegisterDriver(d, time.Duration(req.TTL)*time.Second); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Sugar().Infow("Driver registered", "id", d.ID, "release", d.Release, "schema", d.Schema, "host", d.Hostname)
	c.JSON(http.StatusCreated, d)
}

func (s *Server) refreshDriver(c *gin.Context) {
	var req model.RefreshRequest
	if !s.bind(c, &req) {
		return
	}
	d, err := s.store.RefreshDriver(c.Param("id"), time.Duration(req.TTL)*time.Second)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) unregisterDriver(c *gin.Context) {
	if err := s.store.UnregisterDriver(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
