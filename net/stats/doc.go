// Package stats turns transport events into metrics.
//
//   - Recorder counts every event kind process-wide with VictoriaMetrics counters
//     and renders them in the Prometheus text format, so a server can expose
//     them on an HTTP endpoint. It plugs into a client or server as an event hook.
//   - ConnectionStats keeps go-metrics meters of the packets and bytes of one
//     connection plus a histogram of its round trip times in ticks.
package stats
