// Package maintenance takes scheduled snapshots of the profile store.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/memory"
)

const snapshotTimeFormat = "20060102T150405Z"

// Snapshotter is the part of memory.Store a scheduler needs.
type Snapshotter interface {
	BackupAll(ctx context.Context, dir string) (memory.BackupReport, error)
}

type Scheduler struct {
	Schedule string
	Store    Snapshotter
	Dir      string
	Keep     int

	now func() time.Time
}

func NewScheduler(schedule string, store Snapshotter, dir string, keep int) (*Scheduler, error) {
	if schedule != "" && !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid backup schedule %q", schedule)
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("maintenance: backup directory is required")
	}
	return &Scheduler{Schedule: schedule, Store: store, Dir: dir, Keep: keep, now: time.Now}, nil
}

// Run snapshots the store at every tick of Schedule until ctx is done. An
// empty schedule disables it.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Schedule == "" {
		logger.InfoC("maintenance", "Backup schedule disabled")
		<-ctx.Done()
		return nil
	}
	for {
		next, err := gronx.NextTickAfter(s.Schedule, s.clock(), false)
		if err != nil {
			return fmt.Errorf("next backup tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, err := s.RunOnce(ctx); err != nil {
			logger.ErrorCF("maintenance", "Scheduled backup failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// RunOnce writes one snapshot directory and prunes old ones beyond Keep.
func (s *Scheduler) RunOnce(ctx context.Context) (memory.BackupReport, error) {
	name := s.clock().UTC().Format(snapshotTimeFormat) + "-" + uuid.NewString()[:8]
	report, err := s.Store.BackupAll(ctx, filepath.Join(s.Dir, name))
	if err != nil {
		return report, err
	}
	logger.InfoCF("maintenance", "Profile snapshot written", map[string]interface{}{
		"dir":   report.Dir,
		"files": report.Files,
	})
	if err := s.prune(); err != nil {
		return report, fmt.Errorf("prune snapshots: %w", err)
	}
	return report, nil
}

func (s *Scheduler) prune() error {
	if s.Keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return err
	}
	var snaps []string
	for _, e := range entries {
		if e.IsDir() && isSnapshotName(e.Name()) {
			snaps = append(snaps, e.Name())
		}
	}
	if len(snaps) <= s.Keep {
		return nil
	}
	// Names start with a sortable UTC timestamp.
	sort.Strings(snaps)
	for _, name := range snaps[:len(snaps)-s.Keep] {
		if err := os.RemoveAll(filepath.Join(s.Dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// isSnapshotName reports whether name has the <timestamp>-<id> shape that
// RunOnce writes.
func isSnapshotName(name string) bool {
	stamp, id, ok := strings.Cut(name, "-")
	if !ok || len(id) != 8 {
		return false
	}
	if _, err := time.Parse(snapshotTimeFormat, stamp); err != nil {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func (s *Scheduler) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
