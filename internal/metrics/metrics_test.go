package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var errLocked = errors.New("document is locked")

func TestNormalizeFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		classifiers []ErrorClassifier
		expected    string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "password message", err: errors.New("password required"), expected: FailurePasswordRequired},
		{name: "parse message", err: errors.New("parse error: empty"), expected: FailureParse},
		{name: "deadline", err: context.DeadlineExceeded, expected: FailureCanceled},
		{name: "unknown", err: errors.New("disk on fire"), expected: FailureOther},
		{
			name:        "classifier wins over message",
			err:         fmt.Errorf("extract: %w", errLocked),
			classifiers: []ErrorClassifier{IsClassifier(errLocked, FailurePasswordRequired)},
			expected:    FailurePasswordRequired,
		},
		{
			name:        "classifier miss falls through",
			err:         errors.New("bad table"),
			classifiers: []ErrorClassifier{IsClassifier(errLocked, FailurePasswordRequired)},
			expected:    FailureOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeFailure(tt.err, tt.classifiers...))
		})
	}
}

func TestRecordStage(t *testing.T) {
	before := testutil.ToFloat64(StageOutcomes.WithLabelValues("market", "fallback"))
	RecordStage("market", "fallback", 20*time.Millisecond)
	after := testutil.ToFloat64(StageOutcomes.WithLabelValues("market", "fallback"))
	assert.Equal(t, before+1, after)
}

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(PipelineRuns.WithLabelValues("complete"))
	RecordRun("complete", time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(PipelineRuns.WithLabelValues("complete")))
}

func TestRecordExtraction(t *testing.T) {
	beforeSkipped := testutil.ToFloat64(SkippedRows)
	beforeEquity := testutil.ToFloat64(ExtractedHoldings.WithLabelValues("equity"))

	RecordExtraction(map[string]int{"equity": 3, "debt": 1}, 2)
	RecordExtraction(nil, 0)

	assert.Equal(t, beforeSkipped+2, testutil.ToFloat64(SkippedRows))
	assert.Equal(t, beforeEquity+3, testutil.ToFloat64(ExtractedHoldings.WithLabelValues("equity")))
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheLookups.WithLabelValues(CacheHit))
	misses := testutil.ToFloat64(CacheLookups.WithLabelValues(CacheMiss))

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(CacheLookups.WithLabelValues(CacheHit)))
	assert.Equal(t, misses+2, testutil.ToFloat64(CacheLookups.WithLabelValues(CacheMiss)))
}

func TestRecordAuditWrite(t *testing.T) {
	failures := testutil.ToFloat64(AuditWrites.WithLabelValues("failure"))
	RecordAuditWrite(false)
	assert.Equal(t, failures+1, testutil.ToFloat64(AuditWrites.WithLabelValues("failure")))
}

func TestUpdater(t *testing.T) {
	calls := make(chan struct{}, 10)
	u := NewUpdater(func() PoolStats {
		calls <- struct{}{}
		return PoolStats{Active: 4, Idle: 2}
	}, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		u.Start(context.Background())
		close(done)
	}()

	<-calls
	<-calls
	u.Stop()
	u.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop")
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(DatabaseConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(DatabaseConnectionsIdle))
}

func TestUpdater_ContextCancellation(t *testing.T) {
	u := NewUpdater(nil, 0)
	assert.Equal(t, 15*time.Second, u.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		u.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater ignored cancelled context")
	}
}
