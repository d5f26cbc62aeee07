package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
)

// finalFlushTimeout bounds the flush performed while stopping.
const finalFlushTimeout = 5 * time.Second

// AuditService batches audit records on a background worker so tool calls
// never wait on the audit store.
type AuditService struct {
	store         audit.Store
	records       chan audit.Record
	closeMu       sync.RWMutex // held for writing while records is closed
	stopped       bool
	wg            sync.WaitGroup
	stopOnce      sync.Once
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	channelSize   int

	// sendTimeout: 0 drops immediately when the channel is full, >0 blocks
	// up to this long first.
	sendTimeout time.Duration
	dropCount   atomic.Int64

	warningThreshold int          // percent of channelSize
	lastWarning      atomic.Int64 // unix nanos of the last depth warning
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets the number of records written per store call.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithFlushInterval sets how often a partial batch is written.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithChannelSize sets the record buffer size.
func WithChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		if size > 0 {
			s.channelSize = size
		}
	}
}

// WithSendTimeout sets how long Record may block on a full buffer.
func WithSendTimeout(timeout time.Duration) AuditOption {
	return func(s *AuditService) {
		s.sendTimeout = timeout
	}
}

// WithWarningThreshold sets the buffer depth percentage (0-100) above which
// a warning is logged, at most once per second. 0 disables it.
func WithWarningThreshold(percent int) AuditOption {
	return func(s *AuditService) {
		s.warningThreshold = min(max(percent, 0), 100)
	}
}

// NewAuditService creates an AuditService writing to store.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	s := &AuditService{
		store:            store,
		logger:           logger,
		batchSize:        100,
		flushInterval:    time.Second,
		channelSize:      1000,
		sendTimeout:      100 * time.Millisecond,
		warningThreshold: 80,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.records = make(chan audit.Record, s.channelSize)
	return s
}

// Start launches the background worker.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record queues a record for writing. When the buffer is full it waits up
// to the send timeout and then drops the record. Records arriving after
// Stop are dropped.
func (s *AuditService) Record(record audit.Record) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.stopped {
		s.drop(record)
		return
	}

	if s.warningThreshold > 0 {
		if depth := len(s.records); depth >= s.channelSize*s.warningThreshold/100 {
			s.warnDepth(depth)
		}
	}

	select {
	case s.records <- record:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.drop(record)
		return
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.records <- record:
	case <-timer.C:
		s.drop(record)
	}
}

func (s *AuditService) drop(record audit.Record) {
	drops := s.dropCount.Add(1)
	s.logger.Warn("audit record dropped",
		"tool", record.ToolName,
		"identity", record.IdentityID,
		"total_drops", drops,
	)
}

func (s *AuditService) warnDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("audit buffer approaching capacity",
			"depth", depth,
			"capacity", s.channelSize,
		)
	}
}

// DroppedRecords returns the number of records dropped so far.
func (s *AuditService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns the number of queued records.
func (s *AuditService) ChannelDepth() int {
	return len(s.records)
}

// ChannelCapacity returns the buffer size.
func (s *AuditService) ChannelCapacity() int {
	return s.channelSize
}

// Stop closes the buffer, waits for the worker to write what is queued and
// flushes the store.
func (s *AuditService) Stop() {
	s.stopOnce.Do(func() {
		s.closeMu.Lock()
		s.stopped = true
		close(s.records)
		s.closeMu.Unlock()
		s.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
		defer cancel()
		if err := s.store.Flush(ctx); err != nil {
			s.logger.Error("failed to flush audit store", "error", err)
		}
	})
}

func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	finish := func() {
		if len(batch) == 0 {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
		defer cancel()
		s.write(flushCtx, batch)
	}

	for {
		select {
		case record, ok := <-s.records:
			if !ok {
				finish()
				return
			}
			batch = append(batch, record)
			if len(batch) >= s.batchSize {
				s.write(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.write(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Keep draining until Stop closes the channel.
			for record := range s.records {
				batch = append(batch, record)
			}
			finish()
			return
		}
	}
}

// write appends a batch. Failures are logged and never reach the caller.
func (s *AuditService) write(ctx context.Context, batch []audit.Record) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write audit batch",
			"error", err,
			"count", len(batch),
		)
	}
}
