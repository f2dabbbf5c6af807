package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type loadMode string

const (
	modeSync           loadMode = "sync"
	modeSyncEdit       loadMode = "sync-edit"
	modeSyncEditDelete loadMode = "sync-edit-delete"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	resyncRate  int
	price       decimal.Decimal
	itemName    string
	bakerTag    string
	outputPath  string
}

type options struct {
	baseURL     string
	total       int
	duration    string
	concurrency int
	connections int
	timeout     string
	mode        string
	resyncRate  int
	price       string
	itemName    string
	bakerTag    string
	outputPath  string
}

func (o options) config(totalSet bool) (config, error) {
	cfg := config{
		baseURL:     strings.TrimSpace(o.baseURL),
		total:       o.total,
		totalSet:    totalSet,
		concurrency: o.concurrency,
		connections: o.connections,
		resyncRate:  o.resyncRate,
		itemName:    strings.TrimSpace(o.itemName),
		bakerTag:    strings.TrimSpace(o.bakerTag),
		outputPath:  o.outputPath,
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(o.timeout))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(o.duration))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	mode, err := parseMode(o.mode)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	price, err := decimal.NewFromString(strings.TrimSpace(o.price))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	if cfg.baseURL == "" {
		return cfg, errors.New("url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if !cfg.price.IsPositive() {
		return cfg, errors.New("price must be > 0")
	}
	if cfg.price.Exponent() < -2 {
		return cfg, errors.New("price must have at most 2 decimal places")
	}
	if cfg.resyncRate < 0 || cfg.resyncRate > 100 {
		return cfg, errors.New("resync-rate must be between 0 and 100")
	}
	if cfg.itemName == "" {
		return cfg, errors.New("item-name is required")
	}
	if cfg.bakerTag == "" {
		return cfg, errors.New("baker-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeSync:
		return modeSync, nil
	case modeSyncEdit:
		return modeSyncEdit, nil
	case modeSyncEditDelete:
		return modeSyncEditDelete, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// NewRootCommand собирает CLI нагрузочного теста для HTTP API заказов.
func NewRootCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:           "loadtest",
		Short:         "Load generator for the bakery order HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd.Flags().Changed("total"))
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			result, err := run(cmd.Context(), cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if result.FailedScenarios > 0 {
				return fmt.Errorf("%d of %d scenarios failed", result.FailedScenarios, result.TotalScenarios)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.baseURL, "url", "http://localhost:5080", "base URL of the order service")
	flags.IntVar(&opts.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flags.StringVar(&opts.duration, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flags.IntVar(&opts.concurrency, "concurrency", 40, "number of concurrent workers")
	flags.IntVar(&opts.connections, "connections", 20, "max idle keep-alive connections per host")
	flags.StringVar(&opts.timeout, "timeout", "5s", "per-request timeout")
	flags.StringVar(&opts.mode, "mode", string(modeSync), "load mode: sync | sync-edit | sync-edit-delete")
	flags.IntVar(&opts.resyncRate, "resync-rate", 0, "percent of scenarios that resend the order with a stale updatedAt (0..100)")
	flags.StringVar(&opts.price, "price", "2.50", "unit price of every item")
	flags.StringVar(&opts.itemName, "item-name", "croissant", "item name prefix")
	flags.StringVar(&opts.bakerTag, "baker-tag", "load", "baker name prefix")
	flags.StringVar(&opts.outputPath, "output", "", "optional JSON report output file path")

	return cmd
}

// run гоняет сценарии пулом воркеров и печатает сводку в w.
func run(ctx context.Context, cfg config, w io.Writer) (report, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.connections
	transport.MaxIdleConnsPerHost = cfg.connections
	httpClient := &http.Client{Transport: transport}
	defer transport.CloseIdleConnections()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	client := newAPIClient(cfg.baseURL, httpClient, cfg.timeout, col)

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(ctx, client, cfg, id, runID)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	printReport(w, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
