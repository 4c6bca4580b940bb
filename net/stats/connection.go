package stats

import (
	"fmt"

	gometrics "github.com/rcrowley/go-metrics"
)

// rttSampleSize is the reservoir size of the rtt histogram
const rttSampleSize = 512

// ConnectionStats holds the meters of one connection
type ConnectionStats struct {
	registry gometrics.Registry

	packetsIn   gometrics.Meter
	packetsOut  gometrics.Meter
	bytesIn     gometrics.Meter
	bytesOut    gometrics.Meter
	retransmits gometrics.Counter
	rtt         gometrics.Histogram
}

// Snapshot is a point-in-time copy of ConnectionStats
type Snapshot struct {
	PacketsIn   int64   `json:"packets_in"`
	PacketsOut  int64   `json:"packets_out"`
	BytesIn     int64   `json:"bytes_in"`
	BytesOut    int64   `json:"bytes_out"`
	Retransmits int64   `json:"retransmits"`
	RateIn      float64 `json:"rate_in"`  // packets per second, one minute average
	RateOut     float64 `json:"rate_out"` // packets per second, one minute average
	RTTSamples  int64   `json:"rtt_samples"`
	RTTMean     float64 `json:"rtt_mean"` // ticks
	RTTP99      float64 `json:"rtt_p99"`  // ticks
	RTTMax      int64   `json:"rtt_max"`  // ticks
}

// NewConnectionStats creates the meters of a connection
func NewConnectionStats() *ConnectionStats {
	s := &ConnectionStats{
		registry:    gometrics.NewRegistry(),
		packetsIn:   gometrics.NewMeter(),
		packetsOut:  gometrics.NewMeter(),
		bytesIn:     gometrics.NewMeter(),
		bytesOut:    gometrics.NewMeter(),
		retransmits: gometrics.NewCounter(),
		rtt:         gometrics.NewHistogram(gometrics.NewUniformSample(rttSampleSize)),
	}
	_ = s.registry.Register("packets.in", s.packetsIn)
	_ = s.registry.Register("packets.out", s.packetsOut)
	_ = s.registry.Register("bytes.in", s.bytesIn)
	_ = s.registry.Register("bytes.out", s.bytesOut)
	_ = s.registry.Register("retransmits", s.retransmits)
	_ = s.registry.Register("rtt", s.rtt)
	return s
}

// RecordIn counts one received datagram of n bytes
func (s *ConnectionStats) RecordIn(n int) {
	s.packetsIn.Mark(1)
	s.bytesIn.Mark(int64(n))
}

// RecordOut counts one sent datagram of n bytes
func (s *ConnectionStats) RecordOut(n int) {
	s.packetsOut.Mark(1)
	s.bytesOut.Mark(int64(n))
}

// RecordRetransmit counts one retransmitted packet
func (s *ConnectionStats) RecordRetransmit() {
	s.retransmits.Inc(1)
}

// RecordRTT adds one round trip time measured in ticks
func (s *ConnectionStats) RecordRTT(ticks int) {
	s.rtt.Update(int64(ticks))
}

// Registry exposes the meters for external reporters
func (s *ConnectionStats) Registry() gometrics.Registry {
	return s.registry
}

// Snapshot returns the current values
func (s *ConnectionStats) Snapshot() Snapshot {
	return Snapshot{
		PacketsIn:   s.packetsIn.Count(),
		PacketsOut:  s.packetsOut.Count(),
		BytesIn:     s.bytesIn.Count(),
		BytesOut:    s.bytesOut.Count(),
		Retransmits: s.retransmits.Count(),
		RateIn:      s.packetsIn.Rate1(),
		RateOut:     s.packetsOut.Rate1(),
		RTTSamples:  s.rtt.Count(),
		RTTMean:     s.rtt.Mean(),
		RTTP99:      s.rtt.Percentile(0.99),
		RTTMax:      s.rtt.Max(),
	}
}

// Stop detaches the meters from the go-metrics ticker
func (s *ConnectionStats) Stop() {
	s.packetsIn.Stop()
	s.packetsOut.Stop()
	s.bytesIn.Stop()
	s.bytesOut.Stop()
	s.registry.UnregisterAll()
}

func (s Snapshot) String() string {
	return fmt.Sprintf("in=%d pkts/%d B out=%d pkts/%d B retransmits=%d rtt(mean=%.1f p99=%.0f max=%d ticks)",
		s.PacketsIn, s.BytesIn, s.PacketsOut, s.BytesOut, s.Retransmits, s.RTTMean, s.RTTP99, s.RTTMax)
}
