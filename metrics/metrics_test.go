package metrics

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordedMetric struct {
	kind  string
	name  string
	tags  map[string]string
	value float64
}

type fakeSink struct {
	events []recordedMetric
}

func (f *fakeSink) Counter(_ context.Context, name string, value int64, tags map[string]string) {
	f.events = append(f.events, recordedMetric{kind: "counter", name: name, value: float64(value), tags: tags})
}

func (f *fakeSink) Gauge(_ context.Context, name string, value float64, tags map[string]string) {
	f.events = append(f.events, recordedMetric{kind: "gauge", name: name, value: value, tags: tags})
}

func (f *fakeSink) Timer(_ context.Context, name string, d time.Duration, tags map[string]string) {
	f.events = append(f.events, recordedMetric{kind: "timer", name: name, value: float64(d), tags: tags})
}

func (f *fakeSink) Close() error { return nil }

func TestInstrumentRecordsOkOnSuccess(t *testing.T) {
	sink := &fakeSink{}
	err := Instrument(context.Background(), sink, "volume.attach", nil, func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Instrument() = %v, want nil", err)
	}
	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2 (timer + counter)", len(sink.events))
	}
	for _, e := range sink.events {
		if e.tags["result"] != "ok" {
			t.Errorf("event %+v tagged result=%q, want ok", e, e.tags["result"])
		}
	}
}

func TestInstrumentRecordsErrorAndPropagates(t *testing.T) {
	sink := &fakeSink{}
	wantErr := errors.New("attach failed")
	err := Instrument(context.Background(), sink, "volume.attach", nil, func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Instrument() = %v, want %v", err, wantErr)
	}
	for _, e := range sink.events {
		if e.tags["result"] != "error" {
			t.Errorf("event %+v tagged result=%q, want error", e, e.tags["result"])
		}
	}
}

func TestLoggerSinkDoesNotPanic(t *testing.T) {
	sink := NewLoggerSink(nil)
	sink.Counter(context.Background(), "x", 1, map[string]string{"a": "b"})
	sink.Gauge(context.Background(), "y", 2.5, nil)
	sink.Timer(context.Background(), "z", time.Second, nil)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
}
