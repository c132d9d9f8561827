package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/logging"
	"dcsstats/internal/stats"
)

// SnapshotPayload is the job pushed onto the Redis queue.
type SnapshotPayload struct {
	SnapshotID string `json:"snapshot_id"`
	Server     string `json:"server,omitempty"`
	MaxRecords int    `json:"max_records,omitempty"`
	Sheets     bool   `json:"sheets,omitempty"`
}

// NewSnapshotPayload returns a payload with a fresh snapshot id.
func NewSnapshotPayload(server string, maxRecords int, sheets bool) SnapshotPayload {
	return SnapshotPayload{
		SnapshotID: uuid.NewString(),
		Server:     server,
		MaxRecords: maxRecords,
		Sheets:     sheets,
	}
}

// ParsePayload decodes a job. A missing snapshot id is replaced by a new one.
func ParsePayload(b []byte) (SnapshotPayload, uuid.UUID, error) {
	var job SnapshotPayload
	if err := json.Unmarshal(b, &job); err != nil {
		return job, uuid.Nil, fmt.Errorf("unmarshal job payload: %w", err)
	}
	if job.MaxRecords < 0 {
		return job, uuid.Nil, fmt.Errorf("max_records must be >= 0, got %d", job.MaxRecords)
	}
	if job.SnapshotID == "" {
		id := uuid.New()
		job.SnapshotID = id.String()
		return job, id, nil
	}
	id, err := uuid.Parse(job.SnapshotID)
	if err != nil {
		return job, uuid.Nil, fmt.Errorf("parse snapshot_id: %w", err)
	}
	return job, id, nil
}

// Snapshotter computes the aggregates of a snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context, opts stats.SnapshotOptions) (*aggregate.SnapshotSet, error)
}

// SnapshotWriter persists a snapshot.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, set *aggregate.SnapshotSet) error
}

// Refresher rebuilds read models after a snapshot is written.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Uploader mirrors a snapshot's leaderboard somewhere else.
type Uploader interface {
	Upload(ctx context.Context, set *aggregate.SnapshotSet) error
}

// SnapshotProcessor handles snapshot export jobs.
type SnapshotProcessor struct {
	source     Snapshotter
	writer     SnapshotWriter
	refresher  Refresher
	uploader   Uploader
	maxRecords int
}

// Option configures a SnapshotProcessor.
type Option func(*SnapshotProcessor)

// WithRefresher refreshes read models after each write.
func WithRefresher(r Refresher) Option {
	return func(p *SnapshotProcessor) { p.refresher = r }
}

// WithUploader enables uploads for jobs that ask for them.
func WithUploader(u Uploader) Option {
	return func(p *SnapshotProcessor) { p.uploader = u }
}

// WithMaxRecords caps log reads for jobs that do not set their own cap.
func WithMaxRecords(n int) Option {
	return func(p *SnapshotProcessor) { p.maxRecords = n }
}

// NewSnapshotProcessor wires a processor.
func NewSnapshotProcessor(source Snapshotter, writer SnapshotWriter, opts ...Option) *SnapshotProcessor {
	p := &SnapshotProcessor{source: source, writer: writer}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes a single snapshot job from the queue.
func (p *SnapshotProcessor) Handle(ctx context.Context, payload []byte) error {
	logger := logging.Logger()
	startTime := time.Now()

	job, id, err := ParsePayload(payload)
	if err != nil {
		return err
	}

	maxRecords := job.MaxRecords
	if maxRecords == 0 {
		maxRecords = p.maxRecords
	}
	logger.Infof("processing snapshot %s (server %q, max records %d)", id, job.Server, maxRecords)

	set, err := p.source.Snapshot(ctx, stats.SnapshotOptions{
		SnapshotID: id,
		Server:     job.Server,
		MaxRecords: maxRecords,
	})
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	logger.Infof("computed snapshot %s: %d players, %d aircraft rows, %d traps, %d servers",
		id, len(set.Players), len(set.Aircraft), len(set.Traps), len(set.Servers))

	if err := p.writer.WriteSnapshot(ctx, set); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	// the snapshot is stored, so later failures only log
	if p.refresher != nil {
		if err := p.refresher.Refresh(ctx); err != nil {
			logger.Warnf("view refresh failed after snapshot %s: %v", id, err)
		}
	}

	if job.Sheets {
		if p.uploader == nil {
			logger.Warnf("snapshot %s asked for a sheets upload but sheets are not configured", id)
		} else if err := p.uploader.Upload(ctx, set); err != nil {
			logger.Warnf("sheets upload failed for snapshot %s: %v", id, err)
		}
	}

	logger.Infof("snapshot job completed for %s in %v", id, time.Since(startTime))
	return nil
}
