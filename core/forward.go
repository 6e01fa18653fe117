package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/mesh-simulator/internal/logging"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// Forwarding failures. All of them drop the packet and are never fatal.
var (
	ErrTTLExpired     = errors.New("ttl expired")
	ErrNoRoutingTable = errors.New("no routing table for policy")
	ErrNoRouteEntry   = errors.New("no route entry for prefix")
	ErrUnknownNextHop = errors.New("next hop not known")
	ErrNotConnected   = errors.New("next hop not connected")
	ErrPacketDropped  = errors.New("packet dropped by middleware")
)

// ForwardError describes a failed route lookup on one router.
type ForwardError struct {
	Kind    error
	Router  string
	Tos     string
	Prefix  string
	NextHop string
}

// Error describes the failed hop.
func (e *ForwardError) Error() string {
	msg := fmt.Sprintf("router %s: %v (tos %q, prefix %s", e.Router, e.Kind, e.Tos, e.Prefix)
	if e.NextHop != "" {
		msg += ", next hop " + e.NextHop
	}
	return msg + ")"
}

func (e *ForwardError) Unwrap() error { return e.Kind }

// SendPacket originates a packet towards dst using the table of tos and
// forwards it to completion.
func (r *Router) SendPacket(dst, tos string) (int, error) {
	return r.Send(model.NewPacket(dst, tos))
}

// Send forwards packet from r and reports the outcome to the run metrics.
func (r *Router) Send(packet *model.Packet) (int, error) {
	hops, err := r.Forward(packet)
	r.sim.Metrics.PacketOutcome(packet.Tos, Outcome(err), hops)
	return hops, err
}

// Forward carries packet hop by hop from r until it reaches the router
// owning its destination prefix or is dropped. On success it returns the
// number of hops travelled; every failure reports zero hops.
func (r *Router) Forward(packet *model.Packet) (int, error) {
	current := r
	for {
		if packet.TTL <= 0 {
			current.log.Info(context.Background(), "packet ttl expired",
				logging.String("prefix", packet.DstPrefix), logging.Tick(current.Now()))
			return 0, fmt.Errorf("router %s: %w", current.id, ErrTTLExpired)
		}
		if current.OwnsPrefix(packet.DstPrefix) {
			return packet.Hops(), nil
		}

		next, entry, err := current.nextHop(packet)
		if err != nil {
			current.log.Info(context.Background(), "forwarding failed",
				logging.Err(err), logging.Tick(current.Now()))
			return 0, err
		}

		packet.TTL--
		packet.Path = append(packet.Path, current.id)
		packet = current.sim.Middleware.ForwardPacket(current, next, entry.Interface, packet)
		if packet == nil {
			return 0, fmt.Errorf("router %s: %w", current.id, ErrPacketDropped)
		}
		current = next
	}
}

// nextHop resolves the neighbor a packet is handed to.
func (r *Router) nextHop(packet *model.Packet) (*Router, model.RouteEntry, error) {
	fail := func(kind error, nextHop string) error {
		return &ForwardError{Kind: kind, Router: r.id, Tos: packet.Tos, Prefix: packet.DstPrefix, NextHop: nextHop}
	}

	entry, hasTable, found := r.routingTable.Lookup(packet.Tos, packet.DstPrefix)
	if !hasTable {
		return nil, entry, fail(ErrNoRoutingTable, "")
	}
	if !found {
		return nil, entry, fail(ErrNoRouteEntry, "")
	}
	next, err := r.sim.Routers.ByAddr(entry.NextHop)
	if err != nil {
		return nil, entry, fail(ErrUnknownNextHop, entry.NextHop)
	}
	if !r.IsConnected(next, entry.Interface) {
		return nil, entry, fail(ErrNotConnected, entry.NextHop)
	}
	return next, entry, nil
}
