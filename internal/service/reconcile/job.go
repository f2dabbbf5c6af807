package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
)

// DefaultSchedule — каждые 15 минут (формат cron с секундами).
const DefaultSchedule = "0 */15 * * * *"

const defaultRunTimeout = 2 * time.Minute

// Reconciler сверяет totalAmount всех заказов с их позициями.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (orders.ReconcileReport, error)
}

// Job периодически запускает сверку сумм заказов по cron-расписанию.
type Job struct {
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	cron       *cron.Cron
	logger     *log.Entry

	// running не даёт запускам накладываться, если сверка идёт дольше интервала.
	running sync.Mutex
}

// NewJob создаёт задачу сверки. Пустое расписание заменяется DefaultSchedule.
func NewJob(reconciler Reconciler, schedule string, logger *log.Entry) *Job {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = log.WithField("component", "reconcile-job")
	}
	return &Job{
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    defaultRunTimeout,
		cron:       cron.New(cron.WithSeconds()),
		logger:     logger,
	}
}

// ValidateSchedule проверяет выражение cron (с секундами).
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return nil
}

// Run запускает расписание и блокируется до отмены ctx.
func (j *Job) Run(ctx context.Context) error {
	if j.reconciler == nil {
		return errors.New("reconcile job: reconciler is nil")
	}

	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reconcile job: %w", err)
	}

	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("reconcile job started")

	<-ctx.Done()

	stopped := j.cron.Stop()
	<-stopped.Done()
	j.logger.Info("reconcile job stopped")
	return nil
}

// RunOnce выполняет одну сверку. Если предыдущая ещё идёт, запуск пропускается.
func (j *Job) RunOnce(ctx context.Context) {
	if !j.running.TryLock() {
		j.logger.Warn("previous reconcile run is still in progress, skipping")
		return
	}
	defer j.running.Unlock()

	if ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	report, err := j.reconciler.ReconcileAll(runCtx)
	fields := log.Fields{
		"checked":   report.Checked,
		"corrected": report.Corrected,
		"duration":  time.Since(start),
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		j.logger.WithError(err).WithFields(fields).Error("reconcile run failed")
		return
	}
	if report.Corrected > 0 {
		j.logger.WithFields(fields).Warn("reconcile run corrected order totals")
		return
	}
	j.logger.WithFields(fields).Debug("reconcile run completed")
}
