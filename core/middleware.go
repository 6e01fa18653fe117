package core

import (
	"sort"

	"github.com/signalsfoundry/mesh-simulator/model"
)

// Middleware observes, mutates or vetoes traffic between two routers.
// Returning nil stops delivery on that hop.
type Middleware interface {
	ForwardRoutingMsg(origin, destination *Router, iface string, msg []byte) []byte
	ForwardPacket(origin, destination *Router, iface string, packet *model.Packet) *model.Packet
}

// Resetter is implemented by middlewares holding shared state.
type Resetter interface {
	Reset()
}

// Passthrough forwards everything unchanged. Embed it to implement only
// one of the hooks.
type Passthrough struct{}

// ForwardRoutingMsg returns msg unchanged.
func (Passthrough) ForwardRoutingMsg(_, _ *Router, _ string, msg []byte) []byte { return msg }

// ForwardPacket returns p unchanged.
func (Passthrough) ForwardPacket(_, _ *Router, _ string, p *model.Packet) *model.Packet { return p }

// MiddlewareChain threads traffic through the activated middlewares in
// activation order.
type MiddlewareChain struct {
	active []Middleware
}

// NewMiddlewareChain returns an empty chain.
func NewMiddlewareChain() *MiddlewareChain {
	return &MiddlewareChain{}
}

// Activate appends mw unless it is already active.
func (c *MiddlewareChain) Activate(mw Middleware) {
	for _, m := range c.active {
		if m == mw {
			return
		}
	}
	c.active = append(c.active, mw)
}

// Active returns the activated middlewares in order.
func (c *MiddlewareChain) Active() []Middleware {
	out := make([]Middleware, len(c.active))
	copy(out, c.active)
	return out
}

// ForwardRoutingMsg runs msg through the chain; nil means drop.
func (c *MiddlewareChain) ForwardRoutingMsg(origin, destination *Router, iface string, msg []byte) []byte {
	for _, mw := range c.active {
		msg = mw.ForwardRoutingMsg(origin, destination, iface, msg)
		if msg == nil {
			return nil
		}
	}
	return msg
}

// ForwardPacket runs packet through the chain; nil means drop.
func (c *MiddlewareChain) ForwardPacket(origin, destination *Router, iface string, packet *model.Packet) *model.Packet {
	for _, mw := range c.active {
		packet = mw.ForwardPacket(origin, destination, iface, packet)
		if packet == nil {
			return nil
		}
	}
	return packet
}

// Reset clears the shared state of every resettable middleware.
func (c *MiddlewareChain) Reset() {
	for _, mw := range c.active {
		if r, ok := mw.(Resetter); ok {
			r.Reset()
		}
	}
}

// AsymmetricLinks drops routing messages from origin to destination with
// a per ordered pair probability.
type AsymmetricLinks struct {
	Passthrough
	sim   *Sim
	pairs map[[2]string]float64
}

// NewAsymmetricLinks draws its randomness from sim.
func NewAsymmetricLinks(sim *Sim) *AsymmetricLinks {
	return &AsymmetricLinks{sim: sim, pairs: make(map[[2]string]float64)}
}

// Add sets the drop probability of messages from origin to destination.
func (a *AsymmetricLinks) Add(origin, destination string, probability float64) {
	a.pairs[[2]string{origin, destination}] = probability
}

// ForwardRoutingMsg drops msg with the loss probability set for the
// origin and destination pair.
func (a *AsymmetricLinks) ForwardRoutingMsg(origin, destination *Router, _ string, msg []byte) []byte {
	p, ok := a.pairs[[2]string{origin.ID(), destination.ID()}]
	if !ok {
		return msg
	}
	if p > a.sim.Rand().Float64() {
		return nil
	}
	return msg
}

// TransmitRecorder remembers which routers emitted a routing message
// since the last Reset.
type TransmitRecorder struct {
	Passthrough
	transmitting map[string]bool
}

// NewTransmitRecorder returns an empty recorder.
func NewTransmitRecorder() *TransmitRecorder {
	return &TransmitRecorder{transmitting: make(map[string]bool)}
}

// ForwardRoutingMsg records origin unless msg was already dropped.
func (t *TransmitRecorder) ForwardRoutingMsg(origin, _ *Router, _ string, msg []byte) []byte {
	if msg == nil {
		return nil
	}
	t.transmitting[origin.ID()] = true
	return msg
}

// Transmitted reports whether router id transmitted since the last Reset.
func (t *TransmitRecorder) Transmitted(id string) bool {
	return t.transmitting[id]
}

// Transmitting returns the sorted ids of the routers that transmitted.
func (t *TransmitRecorder) Transmitting() []string {
	out := make([]string, 0, len(t.transmitting))
	for id := range t.transmitting {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset forgets every recorded transmitter.
func (t *TransmitRecorder) Reset() {
	t.transmitting = make(map[string]bool)
}

type hopKey struct {
	origin, destination, iface string
}

// PacketRecorder keeps every forwarded data packet per hop.
type PacketRecorder struct {
	Passthrough
	forwarded map[hopKey][]model.Packet
}

// NewPacketRecorder returns an empty recorder.
func NewPacketRecorder() *PacketRecorder {
	return &PacketRecorder{forwarded: make(map[hopKey][]model.Packet)}
}

// ForwardPacket stores a copy of packet under its hop.
func (p *PacketRecorder) ForwardPacket(origin, destination *Router, iface string, packet *model.Packet) *model.Packet {
	if packet == nil {
		return nil
	}
	k := hopKey{origin: origin.ID(), destination: destination.ID(), iface: iface}
	snapshot := *packet
	snapshot.Path = append([]string(nil), packet.Path...)
	p.forwarded[k] = append(p.forwarded[k], snapshot)
	return packet
}

// HasTransmitted reports whether a packet crossed origin -> destination
// on iface since the last Reset.
func (p *PacketRecorder) HasTransmitted(origin, destination, iface string) bool {
	return len(p.forwarded[hopKey{origin: origin, destination: destination, iface: iface}]) > 0
}

// Packets returns the packets forwarded origin -> destination on iface.
func (p *PacketRecorder) Packets(origin, destination, iface string) []model.Packet {
	return p.forwarded[hopKey{origin: origin, destination: destination, iface: iface}]
}

// Reset forgets every recorded packet.
func (p *PacketRecorder) Reset() {
	p.forwarded = make(map[hopKey][]model.Packet)
}
