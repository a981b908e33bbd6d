package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internal "github.com/tnyamukapa/rentpay/internal"
)

type chargeResult struct {
	resp *ChargeResponse
	err  error
}

type ChargeJob struct {
	Request ChargeRequest
	Result  chan chargeResult
}

type Worker struct {
	ID         int
	WorkerPool chan chan ChargeJob
	JobChannel chan ChargeJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan ChargeJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan ChargeJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(ChargeJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {

			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing charge", "worker_id", w.ID, "transaction_id", job.Request.TransactionID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// CardAdapter talks to the card gateway through a bounded worker pool.
// The pool is a bulkhead: a slow issuer consumes at most maxWorkers
// concurrent calls, and a full queue turns into an immediate retryable
// error instead of unbounded goroutine growth.
type CardAdapter struct {
	gateway *gatewayClient
	dedupe  *dedupeCache
	logger  *slog.Logger

	jobQueue   chan ChargeJob
	workerPool chan chan ChargeJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type CardAdapterConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	DedupeWindow   time.Duration
	MaxWorkers     int
	JobQueueSize   int
}

func NewCardAdapter(config CardAdapterConfig, logger *slog.Logger) *CardAdapter {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	adapter := &CardAdapter{
		gateway: newGatewayClient(config.BaseURL, config.APIKey, config.RequestTimeout, logger),
		dedupe:  newDedupeCache(config.DedupeWindow),
		logger:  logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan ChargeJob, jobQueueSize),
		workerPool: make(chan chan ChargeJob, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	adapter.startWorkerPool()

	return adapter
}

func (a *CardAdapter) Name() string { return "card_gateway" }

func (a *CardAdapter) startWorkerPool() {
	a.once.Do(func() {

		for i := 0; i < a.maxWorkers; i++ {
			worker := NewWorker(i, a.workerPool, a.logger)
			worker.Start(a.ctx, &a.wg, a.processChargeJob)
		}

		a.wg.Add(1)
		go a.dispatch()

		a.logger.Info("card gateway worker pool started",
			"max_workers", a.maxWorkers,
			"queue_size", cap(a.jobQueue))
	})
}

func (a *CardAdapter) dispatch() {
	defer a.wg.Done()

	for {
		select {
		case job := <-a.jobQueue:

			select {
			case jobChannel := <-a.workerPool:

				select {
				case jobChannel <- job:

				case <-a.ctx.Done():
					a.logger.Info("dispatcher shutting down")
					return
				}
			case <-a.ctx.Done():
				a.logger.Info("dispatcher shutting down")
				return
			}
		case <-a.ctx.Done():
			a.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (a *CardAdapter) Shutdown() {
	a.logger.Info("shutting down card gateway adapter")
	a.cancel()
	a.wg.Wait()
	a.logger.Info("card gateway adapter shutdown complete")
}

// Charge submits one card charge and waits for the pool to execute it.
// The call is synchronous for the caller; the pool only bounds
// concurrency toward the gateway.
func (a *CardAdapter) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if cached, ok := a.dedupe.get(req.IdempotencyKey); ok {
		a.logger.Info("card charge deduplicated",
			"idempotency_key", req.IdempotencyKey,
			"transaction_id", req.TransactionID)
		return cached, nil
	}

	job := ChargeJob{
		Request: req,
		Result:  make(chan chargeResult, 1),
	}

	select {
	case a.jobQueue <- job:
	default:
		a.logger.Warn("card charge queue full, rejecting",
			"transaction_id", req.TransactionID,
			"queue_capacity", cap(a.jobQueue))
		return nil, internal.NewTransientError("card gateway is busy, try again shortly", nil)
	}

	select {
	case result := <-job.Result:
		if result.err != nil {
			return nil, result.err
		}
		a.dedupe.put(req.IdempotencyKey, result.resp)
		return result.resp, nil
	case <-ctx.Done():
		return nil, internal.NewTransientError("card gateway call timed out", ctx.Err())
	}
}

func (a *CardAdapter) processChargeJob(job ChargeJob) {
	req := job.Request

	payload := map[string]interface{}{
		"reference":  req.TransactionID,
		"booking_id": req.BookingID,
		"amount":     req.Amount.StringFixed(2),
		"currency":   req.Currency,
		"provider":   req.Method.Provider,
		"return_url": req.ReturnURL,
	}
	if req.Details.Card != nil {
		payload["instrument"] = map[string]interface{}{
			"number":          req.Details.Card.Number,
			"expiry_month":    req.Details.Card.ExpiryMonth,
			"expiry_year":     req.Details.Card.ExpiryYear,
			"cvv":             req.Details.Card.CVV,
			"cardholder_name": req.Details.Card.CardholderName,
		}
	}

	// the job runs on the adapter's lifetime context, not the submitting
	// request's: a caller that stops waiting must not cancel a charge the
	// gateway may already be executing. The client timeout bounds the call.
	ctx, cancel := internal.WithTimeout(a.ctx, a.gateway.client.Timeout)
	defer cancel()

	resp, err := a.gateway.postJSON(ctx, "/charges", req.IdempotencyKey, payload)
	if err != nil {
		job.Result <- chargeResult{err: fmt.Errorf("card charge: %w", err)}
		return
	}

	decoded, err := decodeChargeResponse(resp)
	if err != nil {
		job.Result <- chargeResult{err: fmt.Errorf("card charge: %w", err)}
		return
	}

	a.logger.Info("card charge executed",
		"transaction_id", req.TransactionID,
		"outcome", decoded.Outcome,
		"provider_reference", decoded.ProviderReference)

	job.Result <- chargeResult{resp: decoded}
}

func (a *CardAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	payload := map[string]interface{}{
		"reference": req.TransactionID,
		"charge_id": req.ProviderReference,
		"amount":    req.Amount.StringFixed(2),
		"currency":  req.Currency,
		"reason":    req.Reason,
	}

	resp, err := a.gateway.postJSON(ctx, "/refunds", req.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("card refund: %w", err)
	}
	return decodeRefundResponse(resp)
}

func (a *CardAdapter) QueryStatus(ctx context.Context, providerReference string) (*StatusResponse, error) {
	var envelope chargeEnvelope
	if err := a.gateway.getJSON(ctx, "/charges/"+providerReference, &envelope); err != nil {
		return nil, fmt.Errorf("card status: %w", err)
	}
	return mapStatus(envelope.Data)
}

var _ Adapter = (*CardAdapter)(nil)
