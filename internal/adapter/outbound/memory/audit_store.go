// Package memory provides in-process implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditStore writes audit records as JSON lines to stdout or a file and keeps
// a bounded ring buffer of recent records for Query.
type AuditStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	recent  []audit.Record
	cap     int
}

// NewAuditStore creates an audit store writing to w. A non-positive capacity
// selects the default ring size.
func NewAuditStore(w io.Writer, capacity int) *AuditStore {
	if capacity <= 0 {
		capacity = defaultRecentCap
	}
	return &AuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.Record, 0, capacity),
		cap:     capacity,
	}
}

// OpenFileAuditStore appends to the file at path, creating it if needed.
func OpenFileAuditStore(path string, capacity int) (*AuditStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return NewAuditStore(f, capacity), nil
}

// Append writes each record as one JSON line.
func (s *AuditStore) Append(_ context.Context, records ...audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := s.encoder.Encode(r); err != nil {
			return err
		}
		if len(s.recent) >= s.cap {
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = r
		} else {
			s.recent = append(s.recent, r)
		}
	}
	return nil
}

// Flush syncs file-backed output.
func (s *AuditStore) Flush(_ context.Context) error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Sync()
	}
	return nil
}

// Close closes file-backed output.
func (s *AuditStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Query returns buffered records matching filter, newest first.
func (s *AuditStore) Query(_ context.Context, filter audit.Filter) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.EffectiveLimit()
	var result []audit.Record
	for i := len(s.recent) - 1; i >= 0 && len(result) < limit; i-- {
		rec := s.recent[i]
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		if filter.ToolName != "" && rec.ToolName != filter.ToolName {
			continue
		}
		if filter.IdentityID != "" && rec.IdentityID != filter.IdentityID {
			continue
		}
		if filter.Decision != "" && rec.Decision != filter.Decision {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

var (
	_ audit.Store   = (*AuditStore)(nil)
	_ audit.Querier = (*AuditStore)(nil)
)
