package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/memory"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"github.com/forbiddencoding/deal-notifier/services/app"
	"github.com/forbiddencoding/deal-notifier/services/app/api"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeSource struct {
	categories map[string]bool
	probes     int
}

func (s *probeSource) Search(context.Context, *deals.SearchInput) (*deals.SearchOutput, error) {
	return &deals.SearchOutput{}, nil
}

func (s *probeSource) ByCategory(_ context.Context, in *deals.ByCategoryInput) (*deals.ByCategoryOutput, error) {
	s.probes++
	if !s.categories[in.Slug] {
		return &deals.ByCategoryOutput{}, nil
	}
	return &deals.ByCategoryOutput{Deals: []*deals.Deal{{ID: "https://example.com/" + in.Slug}}}, nil
}

type testServer struct {
	*httptest.Server
	store  *memory.Handle
	source *probeSource
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conf := config.Default()
	conf.Server.MachineID = 1

	v := validator.New(validator.WithRequiredStructEnabled())
	require.NoError(t, schedule.RegisterValidations(v))

	store := memory.NewHandle()
	source := &probeSource{categories: map[string]bool{"laptopy": true, "gry": true}}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"}))

	a, err := app.New(conf, store, source, v, registry)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(a))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store, source: source}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}

	return res.StatusCode, decoded
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_total")
}

func TestWatchLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/v1/watches", `{"owner_id":"100","query":"  Gaming   LAPTOP ","max_price":2000}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["created"])
	watch := body["watch"].(map[string]any)
	assert.Equal(t, "gaming laptop", watch["query"])
	assert.Equal(t, "100", watch["owner_id"])
	assert.Equal(t, 2000.0, watch["max_price"])

	status, body = srv.do(t, http.MethodPost, "/v1/watches", `{"owner_id":"100","query":"gaming laptop","max_price":1500}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["created"])

	status, body = srv.do(t, http.MethodGet, "/v1/owners/100/watches", "")
	require.Equal(t, http.StatusOK, status)
	list := body["watches"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, 1500.0, list[0].(map[string]any)["max_price"])

	status, _ = srv.do(t, http.MethodDelete, "/v1/owners/100/watches?query=Gaming+Laptop", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = srv.do(t, http.MethodDelete, "/v1/owners/100/watches?query=gaming+laptop", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWatchValidation(t *testing.T) {
	srv := newTestServer(t)

	status, _ := srv.do(t, http.MethodPost, "/v1/watches", `{"owner_id":"100","query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.do(t, http.MethodPost, "/v1/watches", `{"owner_id":"100","query":"tv","max_price":-5}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.do(t, http.MethodPost, "/v1/watches", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.do(t, http.MethodGet, "/v1/owners/abc/watches", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCategoryLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/v1/guilds/1/categories",
		`{"slug":"laptopy","channel_id":"55","frequency":"weekly","time":"09:00","day":"Monday","min_temperature":100}`)
	require.Equal(t, http.StatusCreated, status, body)

	job := body["job"].(map[string]any)
	assert.Equal(t, "laptopy", job["slug"])
	assert.Equal(t, "laptopy", job["name"])
	assert.Equal(t, "active", job["status"])
	sched := job["schedule"].(map[string]any)
	assert.Equal(t, "weekly", sched["type"])
	assert.Equal(t, "monday", sched["day"])
	assert.Equal(t, "Weekly (Monday) at 09:00", sched["description"])

	status, _ = srv.do(t, http.MethodPost, "/v1/guilds/1/categories",
		`{"slug":"laptopy","channel_id":"55","frequency":"daily","time":"10:00"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, body = srv.do(t, http.MethodGet, "/v1/guilds/1/categories/laptopy", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "55", body["job"].(map[string]any)["channel_id"])

	status, _ = srv.do(t, http.MethodPut, "/v1/guilds/1/categories/laptopy/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusNoContent, status)

	status, body = srv.do(t, http.MethodGet, "/v1/guilds/1/categories?status=paused", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["jobs"].([]any), 1)

	status, body = srv.do(t, http.MethodGet, "/v1/guilds/1/categories?status=active", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["jobs"].([]any))

	status, _ = srv.do(t, http.MethodPut, "/v1/guilds/1/categories/laptopy/status", `{"status":"sleeping"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.do(t, http.MethodDelete, "/v1/guilds/1/categories/laptopy", "")
	require.Equal(t, http.StatusNoContent, status)

	status, _ = srv.do(t, http.MethodGet, "/v1/guilds/1/categories/laptopy", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateCategoryRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]string{
		"unsafe slug":        `{"slug":"../admin","channel_id":"55","frequency":"daily","time":"09:00"}`,
		"bad time":           `{"slug":"gry","channel_id":"55","frequency":"daily","time":"24:00"}`,
		"weekly without day": `{"slug":"gry","channel_id":"55","frequency":"weekly","time":"09:00"}`,
		"monthly bad date":   `{"slug":"gry","channel_id":"55","frequency":"monthly","time":"09:00","date":32}`,
		"unknown frequency":  `{"slug":"gry","channel_id":"55","frequency":"hourly","time":"09:00"}`,
		"unknown category":   `{"slug":"nie-ma","channel_id":"55","frequency":"daily","time":"09:00"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			status, res := srv.do(t, http.MethodPost, "/v1/guilds/1/categories", body)
			assert.Equal(t, http.StatusBadRequest, status, res)
			assert.NotEmpty(t, res["error"])
		})
	}

	jobs, err := srv.store.ListJobs(context.Background(), &entity.ListJobsInput{GuildID: 1})
	require.NoError(t, err)
	assert.Empty(t, jobs.Jobs)
	assert.Equal(t, 1, srv.source.probes, "only the well-formed request reaches the deal source")
}

func TestCategoryStats(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/v1/guilds/1/categories",
		`{"slug":"gry","channel_id":"55","frequency":"daily","time":"09:00"}`)
	require.Equal(t, http.StatusCreated, status, body)

	out, err := srv.store.GetJob(context.Background(), &entity.GetJobInput{GuildID: 1, Slug: "gry"})
	require.NoError(t, err)

	_, err = srv.store.IncrementJobStats(context.Background(), &entity.IncrementJobStatsInput{
		JobID:      out.Job.ID,
		Date:       "2000-01-01",
		DealsFound: 9,
	})
	require.NoError(t, err)

	status, body = srv.do(t, http.MethodGet, "/v1/guilds/1/categories/gry/stats?days=30", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["days"].([]any), "stats outside the window are left out")
	assert.Equal(t, 0.0, body["totals"].(map[string]any)["deals_found"])

	status, _ = srv.do(t, http.MethodGet, "/v1/guilds/1/categories/gry/stats?days=0x", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.do(t, http.MethodGet, "/v1/guilds/1/categories/missing/stats", "")
	assert.Equal(t, http.StatusNotFound, status)
}
