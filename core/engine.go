package core

import (
	"github.com/signalsfoundry/mesh-simulator/internal/tracepoint"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// EngineHost is the capability a router offers to its protocol engine.
// All three methods are called synchronously from within Tick or Receive.
type EngineHost interface {
	// OnRoutingTableUpdate replaces the host's routing table wholesale.
	OnRoutingTableUpdate(table model.RoutingTable)
	// OnTransmit sends msg to every neighbor connected on iface.
	OnTransmit(iface string, msg []byte)
	// Now returns the simulated clock, which never decreases.
	Now() int
}

// ProtocolEngine is the routing protocol running on a router.
type ProtocolEngine interface {
	Start()
	Stop()
	// Tick advances the engine by one simulated second.
	Tick()
	// Receive delivers an inbound routing message.
	Receive(iface string, msg []byte)
}

// EngineFactory builds the engine of one router.
type EngineFactory func(host EngineHost, cfg model.EngineConfig, tracer tracepoint.Tracer) (ProtocolEngine, error)
