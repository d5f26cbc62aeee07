package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
)

// trackingStore records every appended batch.
type trackingStore struct {
	mu       sync.Mutex
	batches  [][]audit.Record
	flushed  int
	delay    time.Duration
	failWith error
}

func (s *trackingStore) Append(_ context.Context, records ...audit.Record) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]audit.Record, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return s.failWith
}

func (s *trackingStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return nil
}

func (s *trackingStore) Close() error { return nil }

func (s *trackingStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *trackingStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestAuditService_BatchesBySize(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &trackingStore{}
	svc := NewAuditService(store, discardLogger(),
		WithBatchSize(3),
		WithFlushInterval(time.Hour),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	for i := 0; i < 7; i++ {
		svc.Record(audit.Record{ToolName: fmt.Sprintf("tool_%d", i)})
	}
	svc.Stop()

	if got := store.total(); got != 7 {
		t.Errorf("records written = %d, want 7", got)
	}
	if got := store.batchCount(); got != 3 {
		t.Errorf("batches = %d, want 3 (3+3+final 1)", got)
	}
	if store.flushed != 1 {
		t.Errorf("store flushed %d times, want 1", store.flushed)
	}
}

func TestAuditService_FlushesOnInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &trackingStore{}
	svc := NewAuditService(store, discardLogger(),
		WithBatchSize(100),
		WithFlushInterval(10*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	svc.Record(audit.Record{ToolName: "get_user_data"})

	deadline := time.Now().Add(2 * time.Second)
	for store.total() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.total() != 1 {
		t.Errorf("records written = %d, want 1 before Stop", store.total())
	}
	svc.Stop()
}

func TestAuditService_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &trackingStore{delay: 50 * time.Millisecond}
	svc := NewAuditService(store, discardLogger(),
		WithChannelSize(2),
		WithSendTimeout(5*time.Millisecond),
		WithBatchSize(1),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	for i := 0; i < 10; i++ {
		svc.Record(audit.Record{ToolName: fmt.Sprintf("tool_%d", i)})
	}

	if svc.DroppedRecords() == 0 {
		t.Error("expected drops with a 2-slot buffer and slow store")
	}
	if svc.ChannelCapacity() != 2 {
		t.Errorf("ChannelCapacity() = %d, want 2", svc.ChannelCapacity())
	}

	cancel()
	svc.Stop()

	if got := int64(store.total()) + svc.DroppedRecords(); got != 10 {
		t.Errorf("written + dropped = %d, want 10", got)
	}
}

func TestAuditService_ZeroTimeoutDropsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &trackingStore{}
	svc := NewAuditService(store, discardLogger(),
		WithChannelSize(1),
		WithSendTimeout(0),
		WithWarningThreshold(0),
	)
	// Worker not started: the buffer holds one record, the rest drop.
	for i := 0; i < 4; i++ {
		svc.Record(audit.Record{ToolName: "t"})
	}
	if svc.DroppedRecords() != 3 || svc.ChannelDepth() != 1 {
		t.Errorf("drops = %d, depth = %d; want 3, 1", svc.DroppedRecords(), svc.ChannelDepth())
	}

	svc.Start(context.Background())
	svc.Stop()
	if store.total() != 1 {
		t.Errorf("records written = %d, want 1", store.total())
	}
}

func TestAuditService_StoreErrorsAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &trackingStore{failWith: errors.New("disk full")}
	svc := NewAuditService(store, discardLogger(), WithBatchSize(1))
	svc.Start(context.Background())
	svc.Record(audit.Record{ToolName: "post_user_data"})
	svc.Stop()
	svc.Stop()

	if store.total() != 1 {
		t.Errorf("Append calls carried %d records, want 1", store.total())
	}
}

func TestAuditService_RecordAfterStopIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &trackingStore{}
	svc := NewAuditService(store, discardLogger(), WithBatchSize(1))
	svc.Start(context.Background())
	svc.Record(audit.Record{ToolName: "get_user_data"})
	svc.Stop()

	svc.Record(audit.Record{ToolName: "post_user_data"})

	if got := svc.DroppedRecords(); got != 1 {
		t.Errorf("DroppedRecords() = %d, want 1", got)
	}
	if got := store.total(); got != 1 {
		t.Errorf("records written = %d, want 1", got)
	}
}

func TestAuditService_ConcurrentRecordAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &trackingStore{}
	svc := NewAuditService(store, discardLogger(), WithChannelSize(4), WithSendTimeout(time.Millisecond))
	svc.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				svc.Record(audit.Record{ToolName: fmt.Sprintf("tool_%d_%d", i, j)})
			}
		}(i)
	}
	time.Sleep(time.Millisecond)
	svc.Stop()
	wg.Wait()

	if got := int64(store.total()) + svc.DroppedRecords(); got != 400 {
		t.Errorf("written + dropped = %d, want 400", got)
	}
}
