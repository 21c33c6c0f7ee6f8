// Package client talks to the bm-console REST server.
package client

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mslinn/bm-console/pkg/editor"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/property"
)

const UserAgent = "bm-console REST client"

// Client is a typed client of the REST API
type Client struct {
	*resty.Client

	Host    string // http://localhost:9080
	BaseURI string // /api/v1
}

// ClientFunc customizes a new client
type ClientFunc func(c *Client)

// RequestFunc customizes one request
type RequestFunc func(r *resty.Request)

// SetTimeout bounds every request
func SetTimeout(d time.Duration) ClientFunc {
	return func(c *Client) {
		c.Client.SetTimeout(d)
	}
}

// SetDebug dumps requests and responses through resty's logger
func SetDebug(debug bool) ClientFunc {
	return func(c *Client) {
		c.Client.SetDebug(debug)
	}
}

// New returns a client of the server at host
func New(host string, cfs ...ClientFunc) *Client {
	r := resty.New()
	r.SetBaseURL(host).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", UserAgent)

	c := &Client{
		Client:  r,
		Host:    host,
		BaseURI: model.BasePath,
	}
	for _, cf := range cfs {
		cf(c)
	}
	return c
}

// Request sends one request; non-2xx answers come back as errors matching
// the apierr sentinels
func (c *Client) Request(ctx context.Context, method, url string, rfs ...RequestFunc) (*resty.Response, error) {
	r := c.R().SetContext(ctx)
	for _, rf := range rfs {
		rf(r)
	}
	return wrapError(r.Execute(method, c.BaseURI+url))
}

func withBody(body any) RequestFunc {
	return func(r *resty.Request) { r.SetBody(body) }
}

func withResult(result any) RequestFunc {
	return func(r *resty.Request) { r.SetResult(result) }
}

func withPath(params map[string]string) RequestFunc {
	return func(r *resty.Request) { r.SetPathParams(params) }
}

func withQuery(key, value string) RequestFunc {
	return func(r *resty.Request) {
		if value != "" {
			r.SetQueryParam(key, value)
		}
	}
}

// Status reports server health
func (c *Client) Status(ctx context.Context) (*model.StatusResponse, error) {
	var status model.StatusResponse
	if _, err := c.Request(ctx, resty.MethodGet, "/status", withResult(&status)); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListTests lists tests whose names start with prefix
func (c *Client) ListTests(ctx context.Context, prefix string) ([]*model.Test, error) {
	var tests []*model.Test
	if _, err := c.Request(ctx, resty.MethodGet, "/tests", withQuery("prefix", prefix), withResult(&tests)); err != nil {
		return nil, err
	}
	return tests, nil
}

// CreateTest creates a test, or copies one when req.CopyOf is set
func (c *Client) CreateTest(ctx context.Context, req *model.TestRequest) (*model.Test, error) {
	var test model.Test
	if _, err := c.Request(ctx, resty.MethodPost, "/tests", withBody(req), withResult(&test)); err != nil {
		return nil, err
	}
	return &test, nil
}

// GetTest returns a test and its properties
func (c *Client) GetTest(ctx context.Context, name string) (*model.Test, error) {
	var test model.Test
	_, err := c.Request(ctx, resty.MethodGet, "/tests/{test}",
		withPath(map[string]string{"test": name}), withResult(&test))
	if err != nil {
		return nil, err
	}
	return &test, nil
}

// UpdateTest renames or redescribes a test
func (c *Client) UpdateTest(ctx context.Context, name string, req *model.UpdateRequest) (*model.Test, error) {
	var test model.Test
	_, err := c.Request(ctx, resty.MethodPut, "/tests/{test}",
		withPath(map[string]string{"test": name}), withBody(req), withResult(&test))
	if err != nil {
		return nil, err
	}
	return &test, nil
}

// DeleteTest deletes a test with all its runs
func (c *Client) DeleteTest(ctx context.Context, name string) error {
	_, err := c.Request(ctx, resty.MethodDelete, "/tests/{test}", withPath(map[string]string{"test": name}))
	return err
}

func propertyPath(ref editor.Ref, name string) (string, map[string]string) {
	params := map[string]string{"test": ref.Test, "prop": name}
	if ref.Run == "" {
		return "/tests/{test}/props/{prop}", params
	}
	params["run"] = ref.Run
	return "/tests/{test}/runs/{run}/props/{prop}", params
}

// GetProperty returns one property of a test or run
func (c *Client) GetProperty(ctx context.Context, ref editor.Ref, name string) (*property.Descriptor, error) {
	var d property.Descriptor
	url, params := propertyPath(ref, name)
	if _, err := c.Request(ctx, resty.MethodGet, url, withPath(params), withResult(&d)); err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveProperty stores value at version; a nil value resets the property
func (c *Client) SaveProperty(ctx context.Context, ref editor.Ref, name string, version int, value *property.Value) (*property.Descriptor, error) {
	var d property.Descriptor
	url, params := propertyPath(ref, name)
	body := &model.PropertyRequest{Version: version, Value: value}
	if _, err := c.Request(ctx, resty.MethodPut, url, withPath(params), withBody(body), withResult(&d)); err != nil {
		return nil, err
	}
	return &d, nil
}

var _ editor.Saver = &Client{}

func runParams(test, run string) map[string]string {
	return map[string]string{"test": test, "run": run}
}

// ListRuns lists the runs of a test, optionally only those in state
func (c *Client) ListRuns(ctx context.Context, test string, state model.RunState) ([]*model.Run, error) {
	var runs []*model.Run
	_, err := c.Request(ctx, resty.MethodGet, "/tests/{test}/runs",
		withPath(map[string]string{"test": test}), withQuery("state", string(state)), withResult(&runs))
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// CreateRun creates a run of test, or copies one when req.CopyOf is set
func (c *Client) CreateRun(ctx context.Context, test string, req *model.RunRequest) (*model.Run, error) {
	var run model.Run
	_, err := c.Request(ctx, resty.MethodPost, "/tests/{test}/runs",
		withPath(map[string]string{"test": test}), withBody(req), withResult(&run))
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun returns a run and its properties
func (c *Client) GetRun(ctx context.Context, test, run string) (*model.Run, error) {
	return c.getRun(ctx, "/tests/{test}/runs/{run}", test, run)
}

// RunSummary returns a run without its properties
func (c *Client) RunSummary(ctx context.Context, test, run string) (*model.Run, error) {
	return c.getRun(ctx, "/tests/{test}/runs/{run}/summary", test, run)
}

func (c *Client) getRun(ctx context.Context, url, test, run string) (*model.Run, error) {
	var r model.Run
	if _, err := c.Request(ctx, resty.MethodGet, url, withPath(runParams(test, run)), withResult(&r)); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRun renames or redescribes a run
func (c *Client) UpdateRun(ctx context.Context, test, run string, req *model.UpdateRequest) (*model.Run, error) {
	return c.postRun(ctx, resty.MethodPut, "/tests/{test}/runs/{run}", test, run, req)
}

// DeleteRun deletes a run
func (c *Client) DeleteRun(ctx context.Context, test, run string) error {
	_, err := c.Request(ctx, resty.MethodDelete, "/tests/{test}/runs/{run}", withPath(runParams(test, run)))
	return err
}

// ScheduleRun schedules a run at version; a nil time means now
func (c *Client) ScheduleRun(ctx context.Context, test, run string, version int, at *time.Time) (*model.Run, error) {
	return c.postRun(ctx, resty.MethodPost, "/tests/{test}/runs/{run}/schedule", test, run,
		&model.ScheduleRequest{Version: version, Scheduled: at})
}

// TerminateRun stops a started run or unschedules a scheduled one
func (c *Client) TerminateRun(ctx context.Context, test, run string) (*model.Run, error) {
	return c.postRun(ctx, resty.MethodPost, "/tests/{test}/runs/{run}/terminate", test, run, nil)
}

// ReportProgress sends a driver progress report
func (c *Client) ReportProgress(ctx context.Context, test, run string, req *model.ProgressRequest) (*model.Run, error) {
	return c.postRun(ctx, resty.MethodPost, "/tests/{test}/runs/{run}/progress", test, run, req)
}

func (c *Client) postRun(ctx context.Context, method, url, test, run string, body any) (*model.Run, error) {
	var r model.Run
	rfs := []RequestFunc{withPath(runParams(test, run)), withResult(&r)}
	if body != nil {
		rfs = append(rfs, withBody(body))
	}
	if _, err := c.Request(ctx, method, url, rfs...); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRunLogs returns the newest count messages of a run logged at or after
// since. A zero since or count means no bound.
func (c *Client) ListRunLogs(ctx context.Context, test, run string, since time.Time, count int) ([]*model.RunLog, error) {
	var logs []*model.RunLog
	rfs := []RequestFunc{withPath(runParams(test, run)), withResult(&logs)}
	if !since.IsZero() {
		rfs = append(rfs, withQuery("since", since.UTC().Format(time.RFC3339)))
	}
	if count > 0 {
		rfs = append(rfs, withQuery("count", strconv.Itoa(count)))
	}
	if _, err := c.Request(ctx, resty.MethodGet, "/tests/{test}/runs/{run}/logs", rfs...); err != nil {
		return nil, err
	}
	return logs, nil
}

// AddRunLog appends a message to a run's log
func (c *Client) AddRunLog(ctx context.Context, test, run string, level model.LogLevel, msg string) (*model.RunLog, error) {
	var entry model.RunLog
	_, err := c.Request(ctx, resty.MethodPost, "/tests/{test}/runs/{run}/logs",
		withPath(runParams(test, run)), withBody(&model.LogRequest{Level: level, Message: msg}), withResult(&entry))
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTestDefs lists registered test definitions without their properties.
// A count of zero means no limit.
func (c *Client) ListTestDefs(ctx context.Context, activeOnly bool, skip, count int) ([]*model.TestDef, error) {
	var defs []*model.TestDef
	rfs := []RequestFunc{withQuery("activeOnly", strconv.FormatBool(activeOnly)), withResult(&defs)}
	if skip > 0 {
		rfs = append(rfs, withQuery("skip", strconv.Itoa(skip)))
	}
	if count > 0 {
		rfs = append(rfs, withQuery("count", strconv.Itoa(count)))
	}
	if _, err := c.Request(ctx, resty.MethodGet, "/test-defs", rfs...); err != nil {
		return nil, err
	}
	return defs, nil
}

// GetTestDef returns the definition registered for release and schema
func (c *Client) GetTestDef(ctx context.Context, release string, schema int) (*model.TestDef, error) {
	var def model.TestDef
	_, err := c.Request(ctx, resty.MethodGet, "/test-defs/{release}/{schema}",
		withPath(map[string]string{"release": release, "schema": strconv.Itoa(schema)}), withResult(&def))
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// WriteTestDef registers the property definitions of a release and schema
func (c *Client) WriteTestDef(ctx context.Context, req *model.TestDefRequest) (*model.TestDef, error) {
	var def model.TestDef
	if _, err := c.Request(ctx, resty.MethodPost, "/test-defs", withBody(req), withResult(&def)); err != nil {
		return nil, err
	}
	return &def, nil
}

// ListDrivers lists registered drivers matching f
func (c *Client) ListDrivers(ctx context.Context, f model.DriverFilter) ([]*model.Driver, error) {
	var drivers []*model.Driver
	rfs := []RequestFunc{
		withQuery("release", f.Release),
		withQuery("activeOnly", strconv.FormatBool(f.ActiveOnly)),
		withResult(&drivers),
	}
	if f.Schema != nil {
		rfs = append(rfs, withQuery("schema", strconv.Itoa(*f.Schema)))
	}
	if _, err := c.Request(ctx, resty.MethodGet, "/drivers", rfs...); err != nil {
		return nil, err
	}
	return drivers, nil
}

// TestDrivers lists the drivers able to run a test
func (c *Client) TestDrivers(ctx context.Context, test string, activeOnly bool) ([]*model.Driver, error) {
	var drivers []*model.Driver
	_, err := c.Request(ctx, resty.MethodGet, "/tests/{test}/drivers",
		withPath(map[string]string{"test": test}), withQuery("activeOnly", strconv.FormatBool(activeOnly)), withResult(&drivers))
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// RegisterDriver announces a driver; it stays active for req.TTL seconds
// unless refreshed
func (c *Client) RegisterDriver(ctx context.Context, req *model.DriverRequest) (*model.Driver, error) {
	var d model.Driver
	if _, err := c.Request(ctx, resty.MethodPost, "/drivers", withBody(req), withResult(&d)); err != nil {
		return nil, err
	}
	return &d, nil
}

// RefreshDriver keeps a driver active for another ttl
func (c *Client) RefreshDriver(ctx context.Context, id string, ttl time.Duration) (*model.Driver, error) {
	var d model.Driver
	_, err := c.Request(ctx, resty.MethodPut, "/drivers/{id}",
		withPath(map[string]string{"id": id}), withBody(&model.RefreshRequest{TTL: int(ttl / time.Second)}), withResult(&d))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UnregisterDriver withdraws a driver registration
func (c *Client) UnregisterDriver(ctx context.Context, id string) error {
	_, err := c.Request(ctx, resty.MethodDelete, "/drivers/{id}", withPath(map[string]string{"id": id}))
	return err
}
