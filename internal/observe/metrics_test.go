package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// read collects everything the reader has and returns the named metric's
// data, or nil when the instrument never recorded.
func read(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return sm.Metrics[i].Data
			}
		}
	}
	return nil
}

// sumValue returns the int64 sum data point matching the attribute, or -1.
func sumValue(t *testing.T, data metricdata.Aggregation, kv attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data is %T, want Sum[int64]", data)
	}
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(kv.Key); found && v.Emit() == kv.Value.Emit() {
			return dp.Value
		}
	}
	return -1
}

func histogramCount(t *testing.T, data metricdata.Aggregation) uint64 {
	t.Helper()
	hist, ok := data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data is %T, want Histogram[float64]", data)
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("histogram has no data points")
	}
	return hist.DataPoints[0].Count
}

func TestStageHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	stages := map[string]metric.Float64Histogram{
		"kalliope.stt.duration":      m.STTDuration,
		"kalliope.llm.duration":      m.LLMDuration,
		"kalliope.tts.duration":      m.TTSDuration,
		"kalliope.pipeline.duration": m.PipelineDuration,
	}
	for _, h := range stages {
		h.Record(ctx, 0.2)
		h.Record(ctx, 1.4)
	}

	for name := range stages {
		data := read(t, reader, name)
		if data == nil {
			t.Fatalf("%s not recorded", name)
		}
		if got := histogramCount(t, data); got != 2 {
			t.Errorf("%s sample count = %d, want 2", name, got)
		}
	}
}

func TestDiscardsCountedByReason(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDiscard(ctx, "short_burst")
	m.RecordDiscard(ctx, "short_burst")
	m.RecordDiscard(ctx, "empty_transcript")

	data := read(t, reader, "kalliope.discards")
	if got := sumValue(t, data, attribute.String("reason", "short_burst")); got != 2 {
		t.Errorf("short_burst discards = %d, want 2", got)
	}
	if got := sumValue(t, data, attribute.String("reason", "empty_transcript")); got != 1 {
		t.Errorf("empty_transcript discards = %d, want 1", got)
	}
}

func TestUtterancesCountedByRoom(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "room-1")
	m.RecordUtterance(ctx, "room-1")
	m.RecordUtterance(ctx, "room-2")

	data := read(t, reader, "kalliope.utterances")
	if got := sumValue(t, data, attribute.String("room_id", "room-1")); got != 2 {
		t.Errorf("room-1 utterances = %d, want 2", got)
	}
}

func TestProviderErrorsCountedByStage(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordProviderError(context.Background(), "elevenlabs", "tts")

	data := read(t, reader, "kalliope.provider.errors")
	if got := sumValue(t, data, attribute.String("stage", "tts")); got != 1 {
		t.Errorf("tts provider errors = %d, want 1", got)
	}
}

func TestActiveGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRooms.Add(ctx, 2)
	m.ActiveCaptures.Add(ctx, 1)
	m.ActiveCaptures.Add(ctx, 1)
	m.ActiveCaptures.Add(ctx, -1)

	rooms, ok := read(t, reader, "kalliope.active_rooms").(metricdata.Sum[int64])
	if !ok || len(rooms.DataPoints) == 0 {
		t.Fatal("active_rooms not recorded")
	}
	if rooms.DataPoints[0].Value != 2 {
		t.Errorf("active rooms = %d, want 2", rooms.DataPoints[0].Value)
	}

	caps, ok := read(t, reader, "kalliope.active_captures").(metricdata.Sum[int64])
	if !ok || len(caps.DataPoints) == 0 {
		t.Fatal("active_captures not recorded")
	}
	if caps.DataPoints[0].Value != 1 {
		t.Errorf("active captures = %d, want 1", caps.DataPoints[0].Value)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.HTTPRequestDuration.Record(context.Background(), 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	data := read(t, reader, "kalliope.http.request.duration")
	if data == nil {
		t.Fatal("http request duration not recorded")
	}
	if got := histogramCount(t, data); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
