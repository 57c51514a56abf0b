package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	errors "github.com/frahmantamala/reservation-payments/internal"
	paymentmodel "github.com/frahmantamala/reservation-payments/internal/core/datamodel/payment"
)

// RefreshJob asks a worker to pull the latest gateway state for one payment.
type RefreshJob struct {
	PaymentID  int64
	ExternalID string
}

type Worker struct {
	ID         int
	WorkerPool chan chan RefreshJob
	JobChannel chan RefreshJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan RefreshJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan RefreshJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(context.Context, RefreshJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "payment_id", job.PaymentID)
				processFunc(ctx, job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type ReconcilerConfig struct {
	Interval   time.Duration
	Schedule   string
	MaxWorkers int
	BatchSize  int
}

// Reconciler periodically refreshes payments still waiting on the gateway.
type Reconciler struct {
	service    ServiceAPI
	store      Store
	logger     *slog.Logger
	interval   time.Duration
	schedule   string
	batchSize  int
	maxWorkers int

	workerPool chan chan RefreshJob
	wg         sync.WaitGroup
}

func NewReconciler(service ServiceAPI, store Store, config ReconcilerConfig, logger *slog.Logger) *Reconciler {
	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	interval := config.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	return &Reconciler{
		service:    service,
		store:      store,
		logger:     logger,
		interval:   interval,
		schedule:   config.Schedule,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		workerPool: make(chan chan RefreshJob, maxWorkers),
	}
}

// Run starts the workers and sweeps on the cron schedule, or every interval
// when no schedule is configured, until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	for i := 0; i < r.maxWorkers; i++ {
		NewWorker(i, r.workerPool, r.logger).Start(ctx, &r.wg, r.process)
	}

	r.logger.Info("payment reconciler started",
		"max_workers", r.maxWorkers,
		"interval", r.interval.String(),
		"schedule", r.schedule,
		"batch_size", r.batchSize)

	if r.schedule != "" {
		err := r.runScheduled(ctx)
		if err == nil {
			return
		}
		r.logger.Error("invalid reconciler schedule, using interval", "schedule", r.schedule, "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.dispatch(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			r.wg.Wait()
			r.logger.Info("payment reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) runScheduled(ctx context.Context) error {
	scheduler := cron.New(
		cron.WithParser(errors.CronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := scheduler.AddFunc(r.schedule, func() { r.dispatch(ctx) }); err != nil {
		return err
	}

	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()

	r.wg.Wait()
	r.logger.Info("payment reconciler stopped")
	return nil
}

// RunOnce performs a single sweep and waits for it to finish.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)

	for i := 0; i < r.maxWorkers; i++ {
		NewWorker(i, r.workerPool, r.logger).Start(ctx, &r.wg, r.process)
	}

	dispatched := r.dispatch(ctx)

	// Every worker parks on the pool again only after finishing its job.
	for i := 0; i < r.maxWorkers; i++ {
		select {
		case <-r.workerPool:
		case <-ctx.Done():
		}
	}

	cancel()
	r.wg.Wait()
	return dispatched
}

func (r *Reconciler) dispatch(ctx context.Context) int {
	records, err := r.store.ListByStatus(ctx, []string{
		paymentmodel.StatusPending,
		paymentmodel.StatusAuthorized,
	}, r.batchSize)
	if err != nil {
		r.logger.Error("failed to list open payments", "error", err)
		return 0
	}

	dispatched := 0
	for _, p := range records {
		if p.ExternalID == "" {
			continue
		}

		select {
		case jobChannel := <-r.workerPool:
			select {
			case jobChannel <- RefreshJob{PaymentID: p.ID, ExternalID: p.ExternalID}:
				dispatched++
			case <-ctx.Done():
				return dispatched
			}
		case <-ctx.Done():
			return dispatched
		}
	}

	if dispatched > 0 {
		r.logger.Info("payment refresh jobs dispatched", "count", dispatched)
	}
	return dispatched
}

func (r *Reconciler) process(ctx context.Context, job RefreshJob) {
	view, err := r.service.RefreshPayment(ctx, job.PaymentID, SkipFinalized())
	if err != nil {
		r.logger.Warn("payment refresh failed",
			"payment_id", job.PaymentID,
			"external_id", job.ExternalID,
			"error", err)
		return
	}

	r.logger.Debug("payment refreshed",
		"payment_id", view.ID,
		"status", view.Status)
}
