package seqtx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/seqtx/backoff"
	"github.com/arloliu/seqtx/internal/hooks"
	"github.com/arloliu/seqtx/internal/logger"
	"github.com/arloliu/seqtx/internal/metrics"
	"github.com/arloliu/seqtx/strategy"
	"github.com/puzpuzpuz/xsync/v4"
)

// Processing is a batch processing job over a fixed set of series.
//
// A job owns the shared state of its processors: the admission counters, the
// series rotation, the in-process lease registry and the status board. It is
// created with NewProcessing, populated with CreateProcessor, and released
// with StartAll once every processor was created.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - Transaction ownership is arbitrated by the Coordinator, not by in-process locks
//
// Lifecycle:
//   - Create with NewProcessing()
//   - Create processors with CreateProcessor() and run each with Processor.Run()
//   - Call StartAll() to release the start barrier
//   - Poll Status() or wait on Done() for completion
//   - Call Stop() and AwaitTermination(), or Shutdown(), for graceful shutdown
type Processing struct {
	jobID    string
	cfg      Config
	coord    Coordinator
	handler  Handler
	supplier Supplier

	series      map[string]Series
	seriesOrder []string

	hooks   Hooks
	metrics MetricsCollector
	logger  Logger
	wait    backoff.Strategy
	retry   *retrier
	now     func() time.Time

	rotation  *strategy.Rotation
	admission *admission
	board     *statusBoard
	selectMu  sync.Mutex                   // orders series selection against lease release
	leases    *xsync.Map[string, string]   // series id -> processor id
	drained   *xsync.Map[string, struct{}] // series ids that reached their upper bound
	exhausted *xsync.Map[string, Transaction]

	// Lifecycle management
	ctx        context.Context //nolint:containedctx // job context handed to hooks
	cancel     context.CancelFunc
	mu         sync.Mutex
	processors []*Processor
	finished   int
	started    bool
	stopped    bool
	startCh    chan struct{}
	stopCh     chan struct{}
	doneCh     chan struct{}
	doneOnce   sync.Once
}

// NewProcessing creates a processing job.
//
// Construction fails fast on configuration errors so that no processor ever
// starts with an invalid job: the config is defaulted and validated, all
// collaborators are required, and series ids must be non-empty and unique.
//
// Parameters:
//   - jobID: Job identifier used in logs and status
//   - cfg: Configuration; missing values are filled with defaults
//   - coord: Transaction coordinator (see coordinator.New)
//   - handler: User handler invoked once per claimed transaction
//   - supplier: Data supplier for the series
//   - series: Series assigned to the job
//   - opts: Optional dependencies (logger, metrics, hooks, wait strategy, clock)
//
// Returns:
//   - *Processing: Initialized job
//   - error: Validation error wrapping ErrInvalidConfig or a missing-collaborator error
//
// Example:
//
//	cfg := seqtx.DefaultConfig()
//	coord := coordinator.New(natsStore)
//	job, err := seqtx.NewProcessing("orders", &cfg, coord, handler, sup, series)
//	if err != nil {
//	    return err
//	}
//	for i := range 4 {
//	    p, _ := job.CreateProcessor(fmt.Sprintf("worker-%d", i))
//	    go p.Run(ctx)
//	}
//	job.StartAll()
func NewProcessing(
	jobID string,
	cfg *Config,
	coord Coordinator,
	handler Handler,
	supplier Supplier,
	series []Series,
	opts ...Option,
) (*Processing, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if coord == nil {
		return nil, ErrCoordinatorRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	if supplier == nil {
		return nil, ErrSupplierRequired
	}
	if len(series) == 0 {
		return nil, ErrNoSeries
	}

	byID := make(map[string]Series, len(series))
	order := make([]string, 0, len(series))
	for _, s := range series {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: empty series id", ErrInvalidConfig)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSeries, s.ID)
		}
		if !s.Open() && ComparePositions(s.To, s.From) < 0 {
			return nil, fmt.Errorf("%w: series %s ends before it starts", ErrInvalidConfig, s)
		}
		byID[s.ID] = s
		order = append(order, s.ID)
	}

	conf := *cfg
	SetDefaults(&conf)
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	options := &processingOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	var loggerInstance Logger = logger.NewNop()
	if options.logger != nil {
		loggerInstance = options.logger
	}
	loggerInstance = logger.With(loggerInstance, "job", jobID)

	conf.ValidateWithWarnings(loggerInstance)

	wait := options.waitStrategy
	if wait == nil {
		wait = backoff.NewConstant(conf.TransactionAcquisitionDelay)
	}
	storeRetry := options.storeRetry
	if storeRetry == nil {
		storeRetry = backoff.DefaultStoreRetry()
	}
	now := options.now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Processing{
		jobID:       jobID,
		cfg:         conf,
		coord:       coord,
		handler:     handler,
		supplier:    supplier,
		series:      byID,
		seriesOrder: order,
		hooks:       hooks.Fill(options.hooks),
		metrics:     metricsCollector,
		logger:      loggerInstance,
		wait:        wait,
		retry: &retrier{
			attempts:  conf.StoreRetryAttempts,
			strategy:  storeRetry,
			opTimeout: conf.StoreOperationTimeout,
			metrics:   metricsCollector,
		},
		now:       now,
		rotation:  strategy.NewRotation(order),
		admission: newAdmission(conf.MaxInProgressTransactions, conf.MaxRetryingTransactions, metricsCollector),
		board:     newStatusBoard(),
		leases:    xsync.NewMap[string, string](),
		drained:   xsync.NewMap[string, struct{}](),
		exhausted: xsync.NewMap[string, Transaction](),
		ctx:       ctx,
		cancel:    cancel,
		startCh:   make(chan struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// JobID returns the job identifier.
func (j *Processing) JobID() string {
	return j.jobID
}

// Config returns the effective configuration, with defaults applied.
func (j *Processing) Config() Config {
	return j.cfg
}

// CreateProcessor registers a processor with the job.
//
// Every created processor must be run with Processor.Run; the job is done
// once all of them finished. Processors cannot be added after StartAll.
//
// Parameters:
//   - id: Processor id, unique within the job; it becomes the owner id of claimed transactions
//
// Returns:
//   - *Processor: Processor handle
//   - error: ErrInvalidProcessorID, ErrDuplicateProcessor or ErrAlreadyStarted
func (j *Processing) CreateProcessor(id string) (*Processor, error) {
	if id == "" {
		return nil, ErrInvalidProcessorID
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started || j.stopped {
		return nil, fmt.Errorf("%w: cannot add processor %s", ErrAlreadyStarted, id)
	}

	entry, ok := j.board.register(id, j.now())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateProcessor, id)
	}

	p := newProcessor(j, id, entry)
	j.processors = append(j.processors, p)

	return p, nil
}

// StartAll releases the start barrier of every processor.
//
// Returns:
//   - error: ErrAlreadyStarted when called twice or after Stop
func (j *Processing) StartAll() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started || j.stopped {
		return ErrAlreadyStarted
	}
	j.started = true
	close(j.startCh)

	j.logger.Info("processing started", "processors", len(j.processors), "series", len(j.seriesOrder))
	j.checkDoneLocked()

	return nil
}

// Stop requests every processor to stop.
//
// Stop is cooperative and does not block: processors observe it between
// loop steps and resolve their in-hand transaction first. Use
// AwaitTermination to wait for them.
func (j *Processing) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stopped {
		return
	}
	j.stopped = true
	close(j.stopCh)

	j.logger.Info("processing stop requested")
	j.checkDoneLocked()
}

// AwaitTermination blocks until every processor finished or ctx is done.
//
// Returns:
//   - error: ctx.Err() when ctx ended first
func (j *Processing) AwaitTermination(ctx context.Context) error {
	select {
	case <-j.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the job and waits at most Config.ShutdownTimeout for the
// processors to finish.
func (j *Processing) Shutdown(ctx context.Context) error {
	j.Stop()

	ctx, cancel := context.WithTimeout(ctx, j.cfg.ShutdownTimeout)
	defer cancel()

	if err := j.AwaitTermination(ctx); err != nil {
		j.logger.Error("shutdown timeout exceeded, some processors are still running", "error", err)
		return err
	}

	return nil
}

// Done is closed once every processor finished.
func (j *Processing) Done() <-chan struct{} {
	return j.doneCh
}

// Status returns an eventually-consistent snapshot of the job.
func (j *Processing) Status() Status {
	inProgress, retrying := j.admission.counts()

	drained := 0
	j.drained.Range(func(_ string, _ struct{}) bool {
		drained++
		return true
	})

	exhausted := make(map[string]Transaction)
	j.exhausted.Range(func(id string, tx Transaction) bool {
		exhausted[id] = tx
		return true
	})

	return Status{
		JobID:      j.jobID,
		Processors: j.board.snapshot(),
		InProgress: inProgress,
		Retrying:   retrying,
		Series:     len(j.seriesOrder),
		Drained:    drained,
		Exhausted:  exhausted,
	}
}

// SeriesIDs returns the ids of the series assigned to the job, in rotation order.
func (j *Processing) SeriesIDs() []string {
	return append([]string(nil), j.seriesOrder...)
}

func (j *Processing) processorFinished() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.finished++
	j.checkDoneLocked()
}

func (j *Processing) checkDoneLocked() {
	if !j.started && !j.stopped {
		return
	}
	if j.finished < len(j.processors) {
		return
	}

	j.doneOnce.Do(func() {
		close(j.doneCh)
		j.cancel()
		j.logger.Info("processing finished")
	})
}

func (j *Processing) stopRequested() bool {
	select {
	case <-j.stopCh:
		return true
	default:
		return false
	}
}

func (j *Processing) markDrained(seriesID string) {
	if _, loaded := j.drained.LoadOrStore(seriesID, struct{}{}); !loaded {
		j.logger.Info("series drained", "series", seriesID)
	}
}

func (j *Processing) isDrained(seriesID string) bool {
	_, ok := j.drained.Load(seriesID)
	return ok
}

// markExhausted records a series whose current range used up its attempts.
func (j *Processing) markExhausted(seriesID string, tx Transaction) {
	if _, loaded := j.exhausted.LoadOrStore(seriesID, tx); !loaded {
		j.logger.Warn("series exhausted its attempts and needs operator intervention",
			"series", seriesID, "transaction", tx.ID, "attempts", tx.Attempts)
	}
}

func (j *Processing) isExhausted(seriesID string) bool {
	_, ok := j.exhausted.Load(seriesID)
	return ok
}

// allSettled reports whether no series is left to claim: each one is drained
// or exhausted.
func (j *Processing) allSettled() bool {
	for _, id := range j.seriesOrder {
		if !j.isDrained(id) && !j.isExhausted(id) {
			return false
		}
	}

	return true
}

// selectSeries picks the next series for a processor and records the
// processor as its in-process holder.
//
// Candidates are computed and leased under selectMu, and releases take the
// same lock, so a processor falls back to the series it just resolved only
// when every other series is leased or settled at that moment.
func (j *Processing) selectSeries(processorID string, last strategy.LastResult, skip func(string) bool) (string, bool) {
	j.selectMu.Lock()
	defer j.selectMu.Unlock()

	for _, id := range j.rotation.Next(j.cfg.StickyMode, last, skip) {
		holder, loaded := j.leases.LoadOrStore(id, processorID)
		if !loaded || holder == processorID {
			return id, true
		}
	}

	return "", false
}

func (j *Processing) releaseSeries(seriesID, processorID string) {
	j.selectMu.Lock()
	defer j.selectMu.Unlock()

	if holder, ok := j.leases.Load(seriesID); ok && holder == processorID {
		j.leases.Delete(seriesID)
	}
}

// fireStateChanged runs the state hook in the background.
func (j *Processing) fireStateChanged(processorID string, from, to ProcessorState) {
	go func() {
		if err := j.hooks.OnStateChanged(j.ctx, processorID, from, to); err != nil {
			j.logger.Error("state change hook error", "processor", processorID, "from", from, "to", to, "error", err)
		}
	}()
}

func (j *Processing) fireResolved(tx *Transaction, outcome Outcome) {
	go func() {
		if err := j.hooks.OnTransactionResolved(j.ctx, tx, outcome); err != nil {
			j.logger.Error("transaction hook error", "series", tx.SeriesID, "transaction", tx.ID, "error", err)
		}
	}()
}

func (j *Processing) fireError(cause error) {
	go func() {
		if err := j.hooks.OnError(j.ctx, cause); err != nil {
			j.logger.Error("error hook error", "cause", cause, "error", err)
		}
	}()
}
