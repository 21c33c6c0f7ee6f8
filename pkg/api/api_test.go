package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/database"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/property"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewServer(db, nil, "test")
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, model.BasePath+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func createLoadTest(t *testing.T, s *Server) {
	t.Helper()
	w := do(t, s, http.MethodPost, "/tests", model.TestRequest{
		Name:    "load",
		Release: "1.0",
		Properties: []*property.Descriptor{
			{Name: "users", Group: "Load", Type: property.StringPtr("int"), Default: property.NumberValue(10), Min: property.NumberValue(1), Max: property.NumberValue(100)},
			{Name: "mongo.host", Group: "MongoDB", Type: property.StringPtr("string"), Default: property.StringValue("--")},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func registerDriver(t *testing.T, s *Server, release string, schema int) string {
	t.Helper()
	w := do(t, s, http.MethodPost, "/drivers", model.DriverRequest{Release: release, Schema: schema, Hostname: "driver01", TTL: 60})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return gjson.Get(w.Body.String(), "id").String()
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	createLoadTest(t, s)

	w := do(t, s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "tests").Int())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestTestEndpoints(t *testing.T) {
	s := newTestServer(t)
	createLoadTest(t, s)

	w := do(t, s, http.MethodGet, "/tests/load", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "load", gjson.Get(body, "name").String())
	assert.Equal(t, int64(2), gjson.Get(body, "properties.#").Int())

	w = do(t, s, http.MethodGet, "/tests?prefix=lo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "#").Int())

	w = do(t, s, http.MethodPost, "/tests", model.TestRequest{Name: "load"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apierr.ReasonAlreadyExists), gjson.Get(w.Body.String(), "reason").String())

	w = do(t, s, http.MethodPost, "/tests", model.TestRequest{Name: "soak", CopyOf: "load"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "soak", gjson.Get(w.Body.String(), "name").String())

	w = do(t, s, http.MethodPut, "/tests/soak", model.UpdateRequest{Name: "soak2", Description: "renamed", Version: 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "version").Int())

	w = do(t, s, http.MethodPut, "/tests/soak2", model.UpdateRequest{Name: "soak3", Version: 0})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apierr.ReasonConflict), gjson.Get(w.Body.String(), "reason").String())

	w = do(t, s, http.MethodDelete, "/tests/soak2", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, http.MethodGet, "/tests/soak2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTestRejectsBadNames(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  model.TestRequest
	}{
		{name: "empty name", req: model.TestRequest{}},
		{name: "leading digit", req: model.TestRequest{Name: "1load"}},
		{name: "bad property", req: model.TestRequest{Name: "load", Properties: []*property.Descriptor{{Name: "1users"}}}},
		{name: "duplicate property", req: model.TestRequest{Name: "load", Properties: []*property.Descriptor{{Name: "users"}, {Name: "users"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/tests", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(apierr.ReasonInvalid), gjson.Get(w.Body.String(), "reason").String())
		})
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, model.BasePath+"/tests", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetProperty(t *testing.T) {
	s := newTestServer(t)
	createLoadTest(t, s)

	v := property.NumberValue(500)
	w := do(t, s, http.MethodPut, "/tests/load/props/users", model.PropertyRequest{Version: 0, Value: &v})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, gjson.Get(w.Body.String(), "message").String(), "100")

	v = property.NumberValue(50)
	w = do(t, s, http.MethodPut, "/tests/load/props/users", model.PropertyRequest{Version: 0, Value: &v})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "version").Int())
	assert.Equal(t, float64(50), gjson.Get(w.Body.String(), "value").Float())

	// a stale version is refused
	w = do(t, s, http.MethodPut, "/tests/load/props/users", model.PropertyRequest{Version: 0, Value: &v})
	assert.Equal(t, http.StatusConflict, w.Code)

	// a null value resets
	w = do(t, s, http.MethodPut, "/tests/load/props/users", map[string]any{"version": 1, "value": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, gjson.Get(w.Body.String(), "value").Exists())
	assert.Equal(t, string(property.OriginDefaults), gjson.Get(w.Body.String(), "origin").String())

	w = do(t, s, http.MethodGet, "/tests/load/props/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestServer(t)
	createLoadTest(t, s)

	w := do(t, s, http.MethodPost, "/tests/load/runs", model.RunRequest{Name: "01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, string(model.StateNotScheduled), gjson.Get(w.Body.String(), "state").String())

	// nothing can run it yet
	w = do(t, s, http.MethodPost, "/tests/load/runs/01/schedule", model.ScheduleRequest{Version: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, gjson.Get(w.Body.String(), "message").String(), "Unable to start test 'load': there is no driver present")
	registerDriver(t, s, "1.0", 0)

	// the host still holds the placeholder
	w = do(t, s, http.MethodPost, "/tests/load/runs/01/schedule", model.ScheduleRequest{Version: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, gjson.Get(w.Body.String(), "message").String(), "mongo.host")

	host := property.StringValue("db1")
	w = do(t, s, http.MethodPut, "/tests/load/runs/01/props/mongo.host", model.PropertyRequest{Version: 0, Value: &host})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(property.OriginRun), gjson.Get(w.Body.String(), "origin").String())

	w = do(t, s, http.MethodPost, "/tests/load/runs/01/schedule", model.ScheduleRequest{Version: 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(model.StateScheduled), gjson.Get(w.Body.String(), "state").String())

	// scheduled runs are read only
	w = do(t, s, http.MethodPut, "/tests/load/runs/01/props/mongo.host", model.PropertyRequest{Version: 1, Value: &host})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apierr.ReasonReadOnly), gjson.Get(w.Body.String(), "reason").String())

	w = do(t, s, http.MethodPost, "/tests/load/runs/01/progress", model.ProgressRequest{Progress: 0.5, ResultsSuccess: 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(model.StateStarted), gjson.Get(w.Body.String(), "state").String())

	w = do(t, s, http.MethodGet, "/tests/load/runs/01/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.5, gjson.Get(w.Body.String(), "progress").Float())
	assert.False(t, gjson.Get(w.Body.String(), "properties").Exists())

	w = do(t, s, http.MethodPost, "/tests/load/runs/01/terminate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(model.StateStopped), gjson.Get(w.Body.String(), "state").String())

	w = do(t, s, http.MethodPost, "/tests/load/runs/01/terminate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodGet, "/tests/load/runs?state=STOPPED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "#").Int())

	// scheduling and terminating both leave a trace in the run log
	w = do(t, s, http.MethodGet, "/tests/load/runs/01/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "#").Int())
}

func TestRunEndpoints(t *testing.T) {
	s := newTestServer(t)
	createLoadTest(t, s)

	w := do(t, s, http.MethodPost, "/tests/load/runs", model.RunRequest{Name: "bad-name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/tests/load/runs", model.RunRequest{Name: "01", Description: "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, s, http.MethodPost, "/tests/load/runs", model.RunRequest{Name: "02", CopyOf: "01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodPut, "/tests/load/runs/02", model.UpdateRequest{Name: "03", Description: "third", Version: 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "03", gjson.Get(w.Body.String(), "name").String())

	w = do(t, s, http.MethodGet, "/tests/load/runs/03", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "properties.#").Int())

	w = do(t, s, http.MethodDelete, "/tests/load/runs/03", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, http.MethodGet, "/tests/load/runs", nil)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "#").Int())
}

func TestRunLogs(t *testing.T) {
	s := newTestServer(t)
	createLoadTest(t, s)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/tests/load/runs", model.RunRequest{Name: "01"}).Code)

	for _, msg := range []string{"one", "two", "three"} {
		w := do(t, s, http.MethodPost, "/tests/load/runs/01/logs", model.LogRequest{Message: msg})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, string(model.LevelInfo), gjson.Get(w.Body.String(), "level").String())
	}

	w := do(t, s, http.MethodGet, "/tests/load/runs/01/logs?count=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"three", "two"}, lines(gjson.Get(w.Body.String(), "#.msg")))

	w = do(t, s, http.MethodGet, "/tests/load/runs/01/logs?count=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodGet, "/tests/load/runs/01/logs?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func lines(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

func TestUnknownRoutes(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nothing", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodPatch, "/tests", nil).Code)
}

func TestTestDefEndpoints(t *testing.T) {
	s := newTestServer(t)

	def := model.TestDefRequest{
		Release:     "2.0",
		Schema:      1,
		Description: "load generator",
		Properties: []*property.Descriptor{
			{Name: "users", Type: property.StringPtr("int"), Default: property.NumberValue(20)},
			{Name: "mongo.host", Type: property.StringPtr("string"), Default: property.StringValue("localhost")},
		},
	}
	w := do(t, s, http.MethodPost, "/test-defs", def)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	tests := []struct {
		name   string
		req    model.TestDefRequest
		code   int
		reason apierr.Reason
	}{
		{name: "duplicate", req: def, code: http.StatusConflict, reason: apierr.ReasonAlreadyExists},
		{name: "older schema", req: model.TestDefRequest{Release: "2.0", Schema: 0}, code: http.StatusBadRequest, reason: apierr.ReasonInvalid},
		{name: "no release", req: model.TestDefRequest{Schema: 1}, code: http.StatusBadRequest, reason: apierr.ReasonInvalid},
		{name: "bad property", req: model.TestDefRequest{Release: "3.0", Properties: []*property.Descriptor{{Name: "1users"}}}, code: http.StatusBadRequest, reason: apierr.ReasonInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/test-defs", tt.req)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, string(tt.reason), gjson.Get(w.Body.String(), "reason").String())
		})
	}

	w = do(t, s, http.MethodGet, "/test-defs/2.0/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "properties.#").Int())
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/test-defs/2.0/7", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/test-defs/2.0/x", nil).Code)

	// only definitions with a live driver are listed by default
	w = do(t, s, http.MethodGet, "/test-defs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "#").Int())
	w = do(t, s, http.MethodGet, "/test-defs?activeOnly=false", nil)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "#").Int())
	registerDriver(t, s, "2.0", 1)
	w = do(t, s, http.MethodGet, "/test-defs", nil)
	assert.Equal(t, "load generator", gjson.Get(w.Body.String(), "0.description").String())

	// a test created from the release takes the registered definition
	w = do(t, s, http.MethodPost, "/tests", model.TestRequest{Name: "load", Release: "2.0", Schema: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, s, http.MethodGet, "/tests/load/props/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(20), gjson.Get(w.Body.String(), "default").Float())

	w = do(t, s, http.MethodPost, "/tests", model.TestRequest{Name: "soak", Release: "2.0", Schema: 5})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDriverEndpoints(t *testing.T) {
	s := newTestServer(t)
	createLoadTest(t, s)

	w := do(t, s, http.MethodGet, "/tests/load/drivers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "#").Int())

	id := registerDriver(t, s, "1.0", 0)
	registerDriver(t, s, "1.1", 0)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/drivers", model.DriverRequest{Schema: 1}).Code)

	w = do(t, s, http.MethodGet, "/tests/load/drivers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{id}, lines(gjson.Get(w.Body.String(), "#.id")))
	assert.NotEmpty(t, gjson.Get(w.Body.String(), "0.ipAddress").String())

	w = do(t, s, http.MethodGet, "/drivers?release=1.1", nil)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "#").Int())
	w = do(t, s, http.MethodGet, "/drivers?schema=0", nil)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "#").Int())
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/drivers?schema=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/drivers?activeOnly=maybe", nil).Code)

	w = do(t, s, http.MethodPut, "/drivers/"+id, model.RefreshRequest{TTL: 120})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, id, gjson.Get(w.Body.String(), "id").String())

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/drivers/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/drivers/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPut, "/drivers/"+id, model.RefreshRequest{TTL: 60}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/tests/missing/drivers", nil).Code)
}
