package spanz

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestActiveSpanSetTag(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "test")
	span.SetTag("key1", "value1")
	span.SetTag("key2", "value2")
	span.SetTag("key1", "last")

	record := span.Snapshot()
	if len(record.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %d", len(record.Tags))
	}
	if record.Tags["key1"] != "last" {
		t.Errorf("Expected last write to win, got %s", record.Tags["key1"])
	}
	if record.Tags["key2"] != "value2" {
		t.Errorf("Expected tag key2=value2, got %s", record.Tags["key2"])
	}
}

func TestActiveSpanGetTag(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "test")

	if _, ok := span.GetTag("any"); ok {
		t.Error("Expected no tags on a new span")
	}

	span.SetTag("existing", "value")
	value, ok := span.GetTag("existing")
	if !ok || value != "value" {
		t.Errorf("Expected existing=value, got %q (%v)", value, ok)
	}
	if _, ok := span.GetTag("missing"); ok {
		t.Error("Expected not to find missing tag")
	}
}

func TestActiveSpanWritesAfterFinishIgnored(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "test")
	span.SetTag("before", "yes")
	span.Finish()

	span.SetTag("after", "yes")
	span.LogEvent("late")
	span.SetName("renamed")
	span.SetBaggageItem("late", "yes")

	if span.State() != StateClosed {
		t.Errorf("Expected closed span, got %s", span.State())
	}
	record := span.Snapshot()
	if _, ok := record.Tags["after"]; ok {
		t.Error("Expected tag written after finish to be ignored")
	}
	if len(record.Events) != 0 {
		t.Errorf("Expected no events, got %d", len(record.Events))
	}
	if record.Name != "test" {
		t.Errorf("Expected name 'test', got %s", record.Name)
	}
	if span.BaggageItem("late") != "" {
		t.Error("Expected baggage written after finish to be ignored")
	}
}

func TestActiveSpanEventsUseTracerClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := clockz.NewFakeClockAt(start)
	tracer := New(WithClock(clock))
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "test")
	clock.Advance(5 * time.Millisecond)
	span.LogEvent(EventClientSend)
	clock.Advance(10 * time.Millisecond)
	span.LogEvent(EventClientRecv)

	events := span.Snapshot().Events
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Label != EventClientSend || !events[0].Time.Equal(start.Add(5*time.Millisecond)) {
		t.Errorf("Unexpected first event %+v", events[0])
	}
	if events[1].Label != EventClientRecv || !events[1].Time.Equal(start.Add(15*time.Millisecond)) {
		t.Errorf("Unexpected second event %+v", events[1])
	}
}

func TestActiveSpanBaggageReplacesCarrier(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "test")
	before := span.Carrier()

	span.SetBaggageItem("tenant", "acme")

	if span.BaggageItem("tenant") != "acme" {
		t.Errorf("Expected baggage tenant=acme, got %q", span.BaggageItem("tenant"))
	}
	if _, ok := before.Baggage("tenant"); ok {
		t.Error("Expected earlier carrier to be unchanged")
	}
	if span.SpanID() != before.SpanID() || span.TraceID() != before.TraceID() {
		t.Error("Expected identity to be kept when baggage changes")
	}
}

func TestConcurrentTagSetting(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "test")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			span.SetTag(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
			span.GetTag("key0")
			span.LogEvent("tick")
		}(i)
	}
	wg.Wait()

	record := span.Snapshot()
	if len(record.Tags) != 100 {
		t.Errorf("Expected 100 tags, got %d", len(record.Tags))
	}
	if len(record.Events) != 100 {
		t.Errorf("Expected 100 events, got %d", len(record.Events))
	}
}

func TestActiveSpanFinishIsIdempotent(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	var mu sync.Mutex
	var delivered int
	tracer.OnSpanComplete(func(Span) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	_, span := tracer.StartSpan(context.Background(), "test")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			span.Finish()
		}()
	}
	wg.Wait()

	if delivered != 1 {
		t.Errorf("Expected span to be delivered once, got %d", delivered)
	}
}

func TestSpanRecordTiming(t *testing.T) {
	clock := clockz.NewFakeClock()
	tracer := New(WithClock(clock))
	defer tracer.Close()

	var got Span
	tracer.OnSpanComplete(func(s Span) { got = s })

	_, span := tracer.StartSpan(context.Background(), "timed")
	start := clock.Now()
	clock.Advance(100 * time.Millisecond)
	span.Finish()

	if got.Duration != 100*time.Millisecond {
		t.Errorf("Expected duration 100ms, got %v", got.Duration)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("Expected start %v, got %v", start, got.StartTime)
	}
	if !got.EndTime.Equal(start.Add(100 * time.Millisecond)) {
		t.Errorf("Expected end %v, got %v", start.Add(100*time.Millisecond), got.EndTime)
	}
}

func TestSpanCloneIsDeep(t *testing.T) {
	original := Span{
		Name:    "op",
		Tags:    map[Tag]string{"a": "1"},
		Baggage: map[string]string{"b": "2"},
		Events:  []Event{{Label: "e"}},
	}

	clone := original.Clone()
	clone.Tags["a"] = "changed"
	clone.Baggage["b"] = "changed"
	clone.Events[0].Label = "changed"

	if original.Tags["a"] != "1" || original.Baggage["b"] != "2" || original.Events[0].Label != "e" {
		t.Errorf("Expected original to be unchanged, got %+v", original)
	}
}

func TestSpanWithNameAndWithTag(t *testing.T) {
	original := Span{Name: "op"}

	renamed := original.WithName("renamed")
	tagged := renamed.WithTag("k", "v")

	if original.Name != "op" || original.Tags != nil {
		t.Errorf("Expected original to be unchanged, got %+v", original)
	}
	if renamed.Name != "renamed" {
		t.Errorf("Expected renamed span, got %s", renamed.Name)
	}
	if v, ok := tagged.Tag("k"); !ok || v != "v" {
		t.Errorf("Expected tag k=v, got %q", v)
	}
	if _, ok := renamed.Tag("k"); ok {
		t.Error("Expected WithTag to leave its receiver untouched")
	}
}

func TestStateString(t *testing.T) {
	if StateOpen.String() != "open" {
		t.Errorf("Expected 'open', got %s", StateOpen)
	}
	if StateClosed.String() != "closed" {
		t.Errorf("Expected 'closed', got %s", StateClosed)
	}
}
