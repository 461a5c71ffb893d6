package snapshots

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultSnapshotDir   = "./data/history"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKey          = "valuation_snapshot"
)

// WALStore persists valuation snapshots (the performance history) in a WAL.
// Records are also kept in memory, trimmed to the retention window, so
// readers never walk the log.
type WALStore struct {
	wal       *gowal.Wal
	retention time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	records []domain.SnapshotRecord
}

type storedSnapshot struct {
	Index    uint64                   `json:"index"`
	Snapshot domain.ValuationSnapshot `json:"snapshot"`
}

// NewWALStore opens (or creates) the history under dir and loads the records
// that fall inside retention. Zero retention keeps everything.
func NewWALStore(dir string, retention time.Duration) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot history WAL")
	}

	s := &WALStore{wal: wal, retention: retention, now: time.Now}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, snapshotKey) {
			continue
		}
		var stored storedSnapshot
		if err := json.Unmarshal(msg.Value, &stored); err != nil {
			_ = wal.Close()
			return nil, errors.Wrap(err, "decode valuation snapshot")
		}
		s.records = append(s.records, domain.SnapshotRecord{Index: stored.Index, Snapshot: stored.Snapshot})
	}

	sort.Slice(s.records, func(i, j int) bool { return s.records[i].Index < s.records[j].Index })
	s.prune()

	return s, nil
}

// Save appends the snapshot to the history and returns its index.
func (s *WALStore) Save(snapshot domain.ValuationSnapshot) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	payload, err := json.Marshal(storedSnapshot{Index: nextIndex, Snapshot: snapshot})
	if err != nil {
		return 0, errors.Wrap(err, "marshal valuation snapshot")
	}

	if err := s.wal.Write(nextIndex, snapshotKey, payload); err != nil {
		return 0, errors.Wrap(err, "write valuation snapshot")
	}

	s.records = append(s.records, domain.SnapshotRecord{Index: nextIndex, Snapshot: snapshot})
	s.prune()

	return nextIndex, nil
}

// SnapshotsAfter returns the retained snapshots written after index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.SnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pos := sort.Search(len(s.records), func(i int) bool { return s.records[i].Index > index })
	if pos == len(s.records) {
		return nil, nil
	}

	out := make([]domain.SnapshotRecord, len(s.records)-pos)
	copy(out, s.records[pos:])

	return out, nil
}

// History returns the retained snapshots taken at or after since.
func (s *WALStore) History(since time.Time) []domain.SnapshotRecord {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SnapshotRecord
	for _, r := range s.records {
		if !r.Snapshot.TakenAt.Before(since) {
			out = append(out, r)
		}
	}

	return out
}

// Latest returns the most recent snapshot.
func (s *WALStore) Latest() (domain.SnapshotRecord, bool) {
	if s == nil {
		return domain.SnapshotRecord{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return domain.SnapshotRecord{}, false
	}

	return s.records[len(s.records)-1], true
}

// Len returns the number of retained snapshots.
func (s *WALStore) Len() int {
	if s == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// prune drops records older than the retention window. Callers hold mu.
func (s *WALStore) prune() {
	if s.retention <= 0 || len(s.records) == 0 {
		return
	}

	cutoff := s.now().Add(-s.retention)
	keep := sort.Search(len(s.records), func(i int) bool {
		return !s.records[i].Snapshot.TakenAt.Before(cutoff)
	})
	if keep > 0 {
		s.records = append([]domain.SnapshotRecord(nil), s.records[keep:]...)
	}
}
