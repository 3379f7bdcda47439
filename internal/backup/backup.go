// Package backup runs periodic snapshots of the database to object storage.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/rs/zerolog"

	apperrors "github.com/histdb/histdb/internal/errors"
	"github.com/histdb/histdb/internal/logging"
	"github.com/histdb/histdb/internal/metrics"
	"github.com/histdb/histdb/internal/storage"
)

// objectPrefix is where snapshots live in the backend.
const objectPrefix = "backups/"

// Snapshotter produces a consistent copy of the database at dest.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Config holds daemon settings.
type Config struct {
	// Interval between snapshots.
	Interval time.Duration

	// Retain is how many snapshots to keep; older ones are pruned.
	Retain int

	// WorkDir is the scratch directory for snapshot and archive files.
	WorkDir string
}

// Daemon periodically snapshots the database, compresses the copy and
// uploads it, then prunes snapshots beyond the retention count.
type Daemon struct {
	cfg     Config
	snap    Snapshotter
	backend storage.Backend
	metrics *metrics.Metrics
	log     zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDaemon creates a backup daemon. Start must be called to begin the
// schedule.
func NewDaemon(cfg Config, snap Snapshotter, backend storage.Backend, m *metrics.Metrics) *Daemon {
	return &Daemon{
		cfg:     cfg,
		snap:    snap,
		backend: backend,
		metrics: m,
		log:     logging.Logger().With().Str("component", "backup").Logger(),
	}
}

// Start launches the schedule loop. The first snapshot runs after one full
// interval, not immediately.
func (d *Daemon) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.run(ctx)

	d.log.Info().
		Dur("interval", d.cfg.Interval).
		Int("retain", d.cfg.Retain).
		Msg("backup daemon started")
}

// Stop cancels the schedule and waits for any in-progress backup to finish.
func (d *Daemon) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.log.Info().Msg("backup daemon stopped")
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				d.log.Error().Err(err).Msg("backup failed")
			}
		}
	}
}

// RunOnce performs a single snapshot, upload and prune cycle.
func (d *Daemon) RunOnce(ctx context.Context) error {
	started := time.Now()
	name := fmt.Sprintf("histdb-%s.db.sz", started.UTC().Format("20060102T150405Z"))

	snapPath := filepath.Join(d.cfg.WorkDir, name+".snapshot")
	archivePath := filepath.Join(d.cfg.WorkDir, name)
	defer os.Remove(snapPath)
	defer os.Remove(archivePath)

	if err := d.snap.Snapshot(ctx, snapPath); err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryBackup, apperrors.CodeSnapshotFailed, "database snapshot failed", err)
	}

	if err := compressFile(snapPath, archivePath); err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryBackup, apperrors.CodeSnapshotFailed, "snapshot compression failed", err)
	}

	object := objectPrefix + name
	if err := d.backend.Upload(ctx, archivePath, object); err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryBackup, apperrors.CodeUploadFailed, "snapshot upload failed", err)
	}

	d.metrics.BackupsCompleted.Inc()
	d.log.Info().
		Str("object", object).
		Dur("elapsed", time.Since(started)).
		Msg("backup completed")

	return d.prune(ctx)
}

// prune deletes the oldest snapshots beyond the retention count. Snapshot
// names embed a UTC timestamp, so lexicographic order is chronological.
func (d *Daemon) prune(ctx context.Context) error {
	if d.cfg.Retain <= 0 {
		return nil
	}

	objects, err := d.backend.ListObjects(ctx, objectPrefix)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryBackup, apperrors.CodeUploadFailed, "listing snapshots failed", err)
	}
	if len(objects) <= d.cfg.Retain {
		return nil
	}

	for _, object := range objects[:len(objects)-d.cfg.Retain] {
		if err := d.backend.Delete(ctx, object); err != nil {
			return apperrors.Wrap(apperrors.ErrCategoryBackup, apperrors.CodeUploadFailed, "pruning snapshot failed", err)
		}
		d.log.Debug().Str("object", object).Msg("pruned old snapshot")
	}
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	w := snappy.NewBufferedWriter(out)
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return out.Close()
}

// Decompress expands a snappy-framed archive, for restoring a snapshot.
func Decompress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, snappy.NewReader(in)); err != nil {
		return err
	}
	return out.Close()
}
