package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
	"github.com/vladislavdragonenkov/bakery/internal/transport/httpapi"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newBakeryServer поднимает настоящий HTTP API поверх in-memory хранилища.
func newBakeryServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "loadtest-test")

	router := httpapi.NewRouter(httpapi.Config{
		Service:        orders.NewService(memory.NewStore(), orders.WithLogger(entry)),
		Idempotency:    memory.NewIdempotencyRepository(),
		IdempotencyTTL: time.Hour,
		Metrics:        metrics.NewHTTPMetrics(prometheus.NewRegistry()),
		Logger:         entry,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string, mode loadMode) config {
	return config{
		baseURL:     baseURL,
		total:       6,
		concurrency: 3,
		connections: 2,
		timeout:     5 * time.Second,
		mode:        mode,
		price:       decimal.RequireFromString("2.50"),
		itemName:    "croissant",
		bakerTag:    "test",
	}
}

func defaultOptions() options {
	return options{
		baseURL:     "http://localhost:5080",
		total:       10,
		duration:    "0s",
		concurrency: 2,
		connections: 2,
		timeout:     "1s",
		mode:        string(modeSync),
		price:       "2.50",
		itemName:    "croissant",
		bakerTag:    "load",
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    loadMode
		wantErr bool
	}{
		{in: "sync", want: modeSync},
		{in: " sync-edit ", want: modeSyncEdit},
		{in: "sync-edit-delete", want: modeSyncEditDelete},
		{in: "create-pay", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseMode(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseMode(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestOptionsConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg, err := defaultOptions().config(false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.timeout != time.Second || cfg.mode != modeSync || !cfg.price.Equal(decimal.RequireFromString("2.5")) {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	})

	t.Run("duration without explicit total", func(t *testing.T) {
		opts := defaultOptions()
		opts.duration = "2s"
		opts.total = 0
		cfg, err := opts.config(false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.duration != 2*time.Second || cfg.totalSet {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	})

	invalid := map[string]func(*options){
		"timeout format":    func(o *options) { o.timeout = "soon" },
		"duration format":   func(o *options) { o.duration = "later" },
		"negative duration": func(o *options) { o.duration = "-1s" },
		"zero total":        func(o *options) { o.total = 0 },
		"zero concurrency":  func(o *options) { o.concurrency = 0 },
		"zero connections":  func(o *options) { o.connections = 0 },
		"zero timeout":      func(o *options) { o.timeout = "0s" },
		"mode":              func(o *options) { o.mode = "pay" },
		"price format":      func(o *options) { o.price = "cheap" },
		"negative price":    func(o *options) { o.price = "-1" },
		"price precision":   func(o *options) { o.price = "1.005" },
		"resync rate":       func(o *options) { o.resyncRate = 101 },
		"empty url":         func(o *options) { o.baseURL = " " },
		"empty item name":   func(o *options) { o.itemName = "" },
		"empty baker tag":   func(o *options) { o.bakerTag = "" },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			opts := defaultOptions()
			mutate(&opts)
			if _, err := opts.config(false); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}

	t.Run("explicit zero total with duration", func(t *testing.T) {
		opts := defaultOptions()
		opts.duration = "1s"
		opts.total = 0
		if _, err := opts.config(true); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(context.Background(), jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(context.Background(), jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(context.Background(), jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		jobs := make(chan int)
		dispatchJobs(ctx, jobs, config{duration: time.Minute})
		if _, ok := <-jobs; ok {
			t.Fatal("expected closed channel without jobs")
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record(methodScenario, 10*time.Millisecond, http.StatusOK)
	c.record(methodScenario, 20*time.Millisecond, http.StatusInternalServerError)
	c.record(methodSyncOrder, 15*time.Millisecond, http.StatusCreated)
	c.record(methodSyncOrder, 15*time.Millisecond, 0)
	c.recordMismatch()

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.SuccessScenarios != 1 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.TotalMismatches != 1 {
		t.Fatalf("unexpected mismatches: %d", r.TotalMismatches)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}

	syncStats, ok := r.Methods[methodSyncOrder]
	if !ok {
		t.Fatalf("expected %s stats in report", methodSyncOrder)
	}
	if syncStats.Codes["201"] != 1 || syncStats.Codes[codeTransportError] != 1 || syncStats.Failed != 1 {
		t.Fatalf("unexpected sync stats: %+v", syncStats)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.P50 != 25 || summary.Min != 10 || summary.Max != 40 || summary.Avg != 25 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if got := buildLatencySummary(nil); got != (latencySummary{}) {
		t.Fatalf("expected empty summary, got %+v", got)
	}
	if p := percentile([]float64{7}, 99); p != 7 {
		t.Fatalf("unexpected single-value percentile: %f", p)
	}

	if got := statusLabel(404); got != "404" {
		t.Fatalf("unexpected status label: %s", got)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}

	if shouldResyncStale(5, 0) || !shouldResyncStale(5, 100) {
		t.Fatal("unexpected resync edge cases")
	}
	if !shouldResyncStale(105, 10) || shouldResyncStale(115, 10) {
		t.Fatal("unexpected resync rate distribution")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport(".", sample); err == nil {
		t.Fatal("expected error for directory path")
	}
	if err := writeJSONReport("../report.json", sample); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
}

func TestRunScenario_AgainstAPI(t *testing.T) {
	srv := newBakeryServer(t)

	for _, mode := range []loadMode{modeSync, modeSyncEdit, modeSyncEditDelete} {
		t.Run(string(mode), func(t *testing.T) {
			col := newCollector()
			client := newAPIClient(srv.URL, srv.Client(), 5*time.Second, col)
			cfg := testConfig(srv.URL, mode)
			cfg.resyncRate = 100

			if err := runScenario(context.Background(), client, cfg, 1, "run-"+string(mode)); err != nil {
				t.Fatalf("runScenario: %v", err)
			}

			r := col.buildReport(time.Now(), time.Second)
			if r.SuccessScenarios != 1 || r.TotalMismatches != 0 {
				t.Fatalf("unexpected report: %+v", r)
			}
			if r.Methods[methodSyncOrder].Codes["201"] != 1 {
				t.Fatalf("expected created sync, got %+v", r.Methods[methodSyncOrder].Codes)
			}
			if r.Methods[methodResync].Codes["200"] != 1 {
				t.Fatalf("expected stale resync with 200, got %+v", r.Methods[methodResync].Codes)
			}
			if mode == modeSyncEditDelete && r.Methods[methodDeleteItem].Calls != 1 {
				t.Fatalf("expected one delete call, got %+v", r.Methods[methodDeleteItem])
			}
		})
	}
}

func TestRunScenario_TotalMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"order-1","totalAmount":"1.00"}`))
	}))
	defer srv.Close()

	col := newCollector()
	client := newAPIClient(srv.URL, srv.Client(), time.Second, col)

	err := runScenario(context.Background(), client, testConfig(srv.URL, modeSync), 0, "mismatch")
	if !errors.Is(err, errTotalMismatch) {
		t.Fatalf("expected total mismatch, got %v", err)
	}
	r := col.buildReport(time.Now(), time.Second)
	if r.TotalMismatches != 1 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestAPIClient_SendsIdempotencyKeyAndMapsErrors(t *testing.T) {
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get(idempotencyHeader))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"uuid is required"}`))
	}))
	defer srv.Close()

	col := newCollector()
	client := newAPIClient(srv.URL+"/", srv.Client(), time.Second, col)

	_, status, err := client.syncOrder(context.Background(), methodSyncOrder, syncPayload{}, "lt-key")
	if err == nil || status != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got status=%d err=%v", status, err)
	}
	if !strings.Contains(err.Error(), "uuid is required") {
		t.Fatalf("expected server message in error, got %v", err)
	}
	if gotKey.Load() != "lt-key" {
		t.Fatalf("unexpected idempotency key: %v", gotKey.Load())
	}

	r := col.buildReport(time.Now(), time.Second)
	if r.Methods[methodSyncOrder].Codes["400"] != 1 {
		t.Fatalf("unexpected codes: %+v", r.Methods[methodSyncOrder].Codes)
	}
}

func TestAPIClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	col := newCollector()
	client := newAPIClient(url, http.DefaultClient, time.Second, col)
	if _, err := client.getOrder(context.Background(), "missing"); err == nil {
		t.Fatal("expected transport error")
	}

	r := col.buildReport(time.Now(), time.Second)
	if r.Methods[methodGetOrder].Codes[codeTransportError] != 1 {
		t.Fatalf("unexpected codes: %+v", r.Methods[methodGetOrder].Codes)
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, report{
		TotalScenarios:   3,
		SuccessScenarios: 3,
		Methods: map[string]methodReport{
			methodScenario:   {Calls: 3, Success: 3},
			methodSyncOrder:  {Calls: 3, Success: 3},
			methodCreateItem: {Calls: 3, Success: 3},
		},
	}, config{mode: modeSyncEdit, total: 3})

	out := buf.String()
	for _, want := range []string{"Load test summary", "mode=sync-edit", "run=count:3", "SyncOrder: calls=3", "CreateItem: calls=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "scenario: calls") {
		t.Fatalf("scenario row must not be printed as method:\n%s", out)
	}
}

func TestRootCommandSmoke(t *testing.T) {
	srv := newBakeryServer(t)
	output := filepath.Join(t.TempDir(), "report.json")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--url", srv.URL,
		"--total", "8",
		"--concurrency", "4",
		"--mode", string(modeSyncEditDelete),
		"--resync-rate", "50",
		"--output", output,
	})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "total=8 success=8 failed=0") {
		t.Fatalf("unexpected summary:\n%s", out.String())
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected report file: %v", err)
	}
}

func TestRootCommandInvalidConfig(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--mode", "refund"})

	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}
