package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/stats"
)

type fakeSource struct {
	opts stats.SnapshotOptions
	err  error
}

func (f *fakeSource) Snapshot(_ context.Context, opts stats.SnapshotOptions) (*aggregate.SnapshotSet, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &aggregate.SnapshotSet{Snapshot: aggregate.SnapshotRow{ID: opts.SnapshotID}}, nil
}

type fakeWriter struct {
	written []*aggregate.SnapshotSet
	err     error
}

func (f *fakeWriter) WriteSnapshot(_ context.Context, set *aggregate.SnapshotSet) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, set)
	return nil
}

type counter struct {
	calls int
	err   error
}

func (c *counter) Refresh(context.Context) error {
	c.calls++
	return c.err
}

func (c *counter) Upload(context.Context, *aggregate.SnapshotSet) error {
	c.calls++
	return c.err
}

func TestParsePayload(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		in      string
		wantErr bool
		wantID  uuid.UUID
	}{
		{"with id", `{"snapshot_id":"` + id.String() + `","server":"Syria"}`, false, id},
		{"missing id", `{"server":"Syria"}`, false, uuid.Nil},
		{"bad id", `{"snapshot_id":"nope"}`, true, uuid.Nil},
		{"negative cap", `{"max_records":-1}`, true, uuid.Nil},
		{"not json", `snapshot please`, true, uuid.Nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, got, err := ParsePayload([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.wantID != uuid.Nil && got != tt.wantID {
				t.Fatalf("id = %s, want %s", got, tt.wantID)
			}
			if got == uuid.Nil || job.SnapshotID != got.String() {
				t.Fatalf("payload id %q does not match %s", job.SnapshotID, got)
			}
		})
	}
}

func TestNewSnapshotPayloadRoundTrip(t *testing.T) {
	p := NewSnapshotPayload("Syria", 500, true)
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	job, id, err := ParsePayload(b)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if id.String() != p.SnapshotID || job.Server != "Syria" || job.MaxRecords != 500 || !job.Sheets {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestHandleWritesSnapshot(t *testing.T) {
	src := &fakeSource{}
	w := &fakeWriter{}
	refresh := &counter{err: errors.New("view missing")}
	upload := &counter{}
	p := NewSnapshotProcessor(src, w, WithRefresher(refresh), WithUploader(upload), WithMaxRecords(1000))

	id := uuid.New()
	err := p.Handle(context.Background(), []byte(`{"snapshot_id":"`+id.String()+`","server":"Syria","sheets":true}`))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(w.written) != 1 || w.written[0].Snapshot.ID != id {
		t.Fatalf("snapshot not written: %+v", w.written)
	}
	if src.opts.Server != "Syria" || src.opts.MaxRecords != 1000 {
		t.Fatalf("unexpected options %+v", src.opts)
	}
	if refresh.calls != 1 || upload.calls != 1 {
		t.Fatalf("refresh %d upload %d", refresh.calls, upload.calls)
	}
}

func TestHandleJobCapWins(t *testing.T) {
	src := &fakeSource{}
	upload := &counter{}
	p := NewSnapshotProcessor(src, &fakeWriter{}, WithUploader(upload), WithMaxRecords(1000))

	if err := p.Handle(context.Background(), []byte(`{"max_records":10}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if src.opts.MaxRecords != 10 || src.opts.SnapshotID == uuid.Nil {
		t.Fatalf("unexpected options %+v", src.opts)
	}
	if upload.calls != 0 {
		t.Fatal("upload must only run when the job asks for it")
	}
}

func TestHandleErrorsTriggerRetry(t *testing.T) {
	boom := errors.New("boom")

	p := NewSnapshotProcessor(&fakeSource{err: boom}, &fakeWriter{})
	if err := p.Handle(context.Background(), []byte(`{}`)); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}

	p = NewSnapshotProcessor(&fakeSource{}, &fakeWriter{err: boom})
	if err := p.Handle(context.Background(), []byte(`{}`)); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}

	// upload failures after a successful write do not fail the job
	p = NewSnapshotProcessor(&fakeSource{}, &fakeWriter{}, WithUploader(&counter{err: boom}))
	if err := p.Handle(context.Background(), []byte(`{"sheets":true}`)); err != nil {
		t.Fatalf("upload error should only be logged, got %v", err)
	}
}
