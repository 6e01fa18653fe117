package core

import "errors"

// Routing message events reported to MetricsRecorder.RoutingMessage.
const (
	MsgTransmitted = "tx"
	MsgReceived    = "rx"
	MsgLost        = "lost"
	MsgVetoed      = "vetoed"
)

// Packet outcomes reported to MetricsRecorder.PacketOutcome.
const (
	OutcomeDelivered      = "delivered"
	OutcomeTTLExpired     = "ttl-expired"
	OutcomeNoRoutingTable = "no-routing-table"
	OutcomeNoRouteEntry   = "no-route-entry"
	OutcomeUnknownNextHop = "unknown-next-hop"
	OutcomeNotConnected   = "not-connected"
	OutcomeDropped        = "dropped"
	OutcomeFailed         = "failed"
)

// MetricsRecorder receives simulation events for aggregation.
type MetricsRecorder interface {
	PacketOutcome(policy, outcome string, hops int)
	RoutingMessage(event string, size int)
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

func (NoopMetrics) PacketOutcome(string, string, int) {}
func (NoopMetrics) RoutingMessage(string, int)        {}

// Outcome maps a forwarding result to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeDelivered
	case errors.Is(err, ErrTTLExpired):
		return OutcomeTTLExpired
	case errors.Is(err, ErrNoRoutingTable):
		return OutcomeNoRoutingTable
	case errors.Is(err, ErrNoRouteEntry):
		return OutcomeNoRouteEntry
	case errors.Is(err, ErrUnknownNextHop):
		return OutcomeUnknownNextHop
	case errors.Is(err, ErrNotConnected):
		return OutcomeNotConnected
	case errors.Is(err, ErrPacketDropped):
		return OutcomeDropped
	default:
		return OutcomeFailed
	}
}
