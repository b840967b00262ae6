package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/screenlink/screenlink/internal/worker"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func newProcessor(backfiller *fakeBackfiller, db worker.Pinger) *worker.JobProcessor {
	job := worker.NewBackfillJob(worker.BackfillJobConfig{
		Config:     testConfig(),
		Backfiller: backfiller,
		Logger:     zerolog.Nop(),
	})
	return worker.NewJobProcessor(job, db, zerolog.Nop())
}

func TestJobProcessor_Handle(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		fail    int
		db      worker.Pinger
		wantAck bool
		wantRun bool
	}{
		{"backfill", `{"job_type":"playback_backfill"}`, 0, nil, true, true},
		{"backfill failure is redelivered", `{"job_type":"playback_backfill"}`, 10, nil, false, true},
		{"health check", `{"job_type":"health_check"}`, 0, fakePinger{}, true, false},
		{"health check without database", `{"job_type":"health_check"}`, 0, nil, true, false},
		{"health check failure", `{"job_type":"health_check"}`, 0, fakePinger{err: errors.New("down")}, false, false},
		{"unknown job", `{"job_type":"reindex"}`, 0, nil, true, false},
		{"malformed", `{not json`, 0, nil, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backfiller := &fakeBackfiller{pending: 2, fail: tt.fail}
			processor := newProcessor(backfiller, tt.db)

			ack := processor.Handle(context.Background(), []byte(tt.data))

			assert.Equal(t, tt.wantAck, ack)
			assert.Equal(t, tt.wantRun, backfiller.calls > 0)
		})
	}
}

func TestJobProcessor_BackfillSince(t *testing.T) {
	backfiller := &fakeBackfiller{}
	processor := newProcessor(backfiller, nil)

	ack := processor.Handle(context.Background(), []byte(`{"job_type":"playback_backfill","since":"2026-03-01T10:00:00+02:00"}`))

	assert.True(t, ack)
	if assert.Len(t, backfiller.since, 1) {
		assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), backfiller.since[0])
	}
}
