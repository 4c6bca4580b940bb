package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ValentinKolb/dNet/net/common"
)

// TestRecorderCounts tests that events are counted per kind
func TestRecorderCounts(t *testing.T) {
	r := NewRecorder(func() int { return 3 })
	hook := r.Hook()

	hook(common.Event{Kind: common.EvtDelivered})
	hook(common.Event{Kind: common.EvtDelivered})
	hook(common.Event{Kind: common.EvtDuplicate})
	hook(common.Event{Kind: common.EvtUnknown}) // not counted

	if got := r.Count(common.EvtDelivered); got != 2 {
		t.Errorf("expected 2 deliveries, got %d", got)
	}
	if got := r.Count(common.EvtDuplicate); got != 1 {
		t.Errorf("expected 1 duplicate, got %d", got)
	}
	if got := r.Summary(); got != "Delivered=2 Duplicate=1" {
		t.Errorf("unexpected summary %q", got)
	}
}

// TestRecorderPrometheus tests the exposition format
func TestRecorderPrometheus(t *testing.T) {
	r := NewRecorder(func() int { return 5 })
	r.Record(common.Event{Kind: common.EvtSent})

	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`dnet_events_total{kind="Sent"} 1`,
		`dnet_events_total{kind="Received"} 0`,
		`dnet_connections 5`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

// TestRecorderEmptySummary tests the summary without events
func TestRecorderEmptySummary(t *testing.T) {
	if got := NewRecorder(nil).Summary(); got != "no events" {
		t.Errorf("unexpected summary %q", got)
	}
}

// TestConnectionStats tests the meters and the rtt histogram
func TestConnectionStats(t *testing.T) {
	s := NewConnectionStats()
	defer s.Stop()

	s.RecordIn(100)
	s.RecordIn(50)
	s.RecordOut(10)
	s.RecordRetransmit()
	for _, rtt := range []int{2, 4, 6} {
		s.RecordRTT(rtt)
	}

	snap := s.Snapshot()
	if snap.PacketsIn != 2 || snap.BytesIn != 150 {
		t.Errorf("unexpected in counters %+v", snap)
	}
	if snap.PacketsOut != 1 || snap.BytesOut != 10 {
		t.Errorf("unexpected out counters %+v", snap)
	}
	if snap.Retransmits != 1 {
		t.Errorf("expected 1 retransmit, got %d", snap.Retransmits)
	}
	if snap.RTTSamples != 3 || snap.RTTMean != 4 || snap.RTTMax != 6 {
		t.Errorf("unexpected rtt values %+v", snap)
	}
	if s.Registry().Get("rtt") == nil {
		t.Errorf("rtt histogram not registered")
	}
	if !strings.Contains(snap.String(), "retransmits=1") {
		t.Errorf("unexpected string %q", snap.String())
	}
}
