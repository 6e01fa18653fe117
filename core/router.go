package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/mesh-simulator/internal/logging"
	"github.com/signalsfoundry/mesh-simulator/internal/tracepoint"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// Interface is a configured router interface with its addresses.
type Interface struct {
	model.InterfaceConfig
	AddrV4 string
	AddrV6 string
}

// RouterOptions configure NewRouter.
type RouterOptions struct {
	// Interfaces default to model.DefaultInterfaces.
	Interfaces []model.InterfaceConfig
	// LogDir receives the config dump and the trace directory. Empty
	// disables both.
	LogDir string
	// Tracer defaults to file tracing when LogDir is set, otherwise no-op.
	Tracer tracepoint.Factory
	// Engine builds the protocol engine. Nil runs the router without one.
	Engine    EngineFactory
	Overrides model.EngineOverrides
}

// Router binds one mobility model, its interfaces and prefixes, the
// routing table filled by the protocol engine and the forwarding logic.
type Router struct {
	id     string
	sim    *Sim
	model  *MobilityModel
	log    logging.Logger
	logDir string

	interfaces map[string]*Interface
	ifOrder    []string
	networks   []model.Network

	routingTable model.RoutingTable
	engine       ProtocolEngine
	engineCfg    model.EngineConfig
	tracer       tracepoint.Tracer

	IsTransmitter bool
	IsReceiver    bool

	started bool
}

// NewRouter creates a router bound to m. Addresses and networks are drawn
// from the run's random source.
func NewRouter(sim *Sim, id string, m *MobilityModel, opts RouterOptions) (*Router, error) {
	if sim == nil || m == nil {
		return nil, fmt.Errorf("router %s: nil simulation context or model", id)
	}
	ifaces := opts.Interfaces
	if len(ifaces) == 0 {
		ifaces = model.DefaultInterfaces()
	}

	r := &Router{
		id:           id,
		sim:          sim,
		model:        m,
		log:          sim.Log.With(logging.String("router", id)),
		logDir:       opts.LogDir,
		interfaces:   make(map[string]*Interface, len(ifaces)),
		routingTable: model.RoutingTable{},
	}
	if m.router != nil {
		return nil, fmt.Errorf("router %s: %w: model %d", id, ErrModelBound, m.id)
	}

	for _, cfg := range ifaces {
		if _, dup := r.interfaces[cfg.Name]; dup {
			return nil, fmt.Errorf("router %s: duplicate interface %q", id, cfg.Name)
		}
		r.interfaces[cfg.Name] = &Interface{
			InterfaceConfig: cfg,
			AddrV4:          r.uniqueAddr(4),
			AddrV6:          r.uniqueAddr(6),
		}
		r.ifOrder = append(r.ifOrder, cfg.Name)
	}
	r.networks = []model.Network{r.uniqueNetwork(4), r.uniqueNetwork(6)}

	r.engineCfg = r.configuration(opts.Overrides)
	if err := r.engineCfg.Validate(); err != nil {
		return nil, fmt.Errorf("router %s: %w", id, err)
	}

	factory := opts.Tracer
	if factory == nil {
		if opts.LogDir != "" {
			factory = tracepoint.FileFactory()
		} else {
			factory = tracepoint.NoopFactory()
		}
	}
	tracer, err := factory(filepath.Join(opts.LogDir, "trace"))
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", id, err)
	}
	r.tracer = tracer

	if opts.LogDir != "" {
		if err := r.saveConfiguration(); err != nil {
			tracer.Close()
			return nil, err
		}
	}

	if opts.Engine != nil {
		engine, err := opts.Engine(r, r.engineCfg, tracer)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("router %s: build engine: %w", id, err)
		}
		r.engine = engine
	}
	if err := m.bind(r); err != nil {
		tracer.Close()
		return nil, err
	}
	return r, nil
}

func (r *Router) configuration(overrides model.EngineOverrides) model.EngineConfig {
	cfg := model.EngineConfig{ID: r.id}
	for _, name := range r.ifOrder {
		iface := r.interfaces[name]
		cfg.Interfaces = append(cfg.Interfaces, model.EngineInterface{
			Name:           name,
			AddrV4:         iface.AddrV4,
			AddrV6:         iface.AddrV6,
			LinkAttributes: iface.LinkAttributes,
			AsymmDetection: iface.AsymmDetection,
		})
	}
	cfg.Networks = append(cfg.Networks, r.networks...)
	overrides.Apply(&cfg)
	return cfg.WithDefaults()
}

func (r *Router) saveConfiguration() error {
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return fmt.Errorf("router %s: create log directory: %w", r.id, err)
	}
	data, err := json.MarshalIndent(r.engineCfg, "", "    ")
	if err != nil {
		return fmt.Errorf("router %s: encode config: %w", r.id, err)
	}
	return os.WriteFile(filepath.Join(r.logDir, "config"), append(data, '\n'), 0o644)
}

func (r *Router) randAddr(version int) netip.Addr {
	rng := r.sim.Rand()
	if version == 4 {
		var b [4]byte
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		return netip.AddrFrom4(b)
	}
	var b [16]byte
	for i := range b {
		b[i] = byte(rng.UintN(256))
	}
	return netip.AddrFrom16(b)
}

// uniqueAddr draws addresses until one is not held by another router of
// the run.
func (r *Router) uniqueAddr(version int) string {
	for {
		a := r.randAddr(version).String()
		if r.sim.Routers.claimAddr(a, r) {
			return a
		}
		r.log.Debug(context.Background(), "address collision, redrawing", logging.String("addr", a))
	}
}

// uniqueNetwork is uniqueAddr for originated prefixes.
func (r *Router) uniqueNetwork(version int) model.Network {
	for {
		n := r.randNetwork(version)
		if r.sim.Routers.claimPrefix(n.Prefix, r) {
			return n
		}
		r.log.Debug(context.Background(), "prefix collision, redrawing", logging.String("prefix", n.Prefix))
	}
}

// randNetwork returns a random /24 (IPv4) or /64 (IPv6) network.
func (r *Router) randNetwork(version int) model.Network {
	bits := 24
	proto := "v4"
	if version == 6 {
		bits = 64
		proto = "v6"
	}
	prefix := netip.PrefixFrom(r.randAddr(version), bits).Masked()
	return model.Network{Proto: proto, Prefix: prefix.Addr().String(), PrefixLen: bits}
}

// ID returns the router id.
func (r *Router) ID() string { return r.id }

// Model returns the bound mobility model.
func (r *Router) Model() *MobilityModel { return r.model }

// Tracer returns the router's tracer.
func (r *Router) Tracer() tracepoint.Tracer { return r.tracer }

// EngineConfig returns the configuration handed to the engine.
func (r *Router) EngineConfig() model.EngineConfig { return r.engineCfg }

// Interface returns the named interface.
func (r *Router) Interface(name string) (*Interface, bool) {
	iface, ok := r.interfaces[name]
	return iface, ok
}

// InterfaceNames returns the interface names in configuration order.
func (r *Router) InterfaceNames() []string {
	return append([]string(nil), r.ifOrder...)
}

// Addresses returns every interface address, v4 before v6 per interface.
func (r *Router) Addresses() []string {
	out := make([]string, 0, 2*len(r.ifOrder))
	for _, name := range r.ifOrder {
		iface := r.interfaces[name]
		out = append(out, iface.AddrV4, iface.AddrV6)
	}
	return out
}

// Networks returns the originated prefixes.
func (r *Router) Networks() []string {
	out := make([]string, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n.Prefix)
	}
	return out
}

// OwnsPrefix reports whether prefix is one of the router's networks.
func (r *Router) OwnsPrefix(prefix string) bool {
	for _, n := range r.networks {
		if n.Prefix == prefix {
			return true
		}
	}
	return false
}

// RandomNetwork picks one of the router's prefixes.
func (r *Router) RandomNetwork() string {
	return r.networks[r.sim.Rand().IntN(len(r.networks))].Prefix
}

// RoutingTable returns the current routing table.
func (r *Router) RoutingTable() model.RoutingTable { return r.routingTable }

// SetRoutingTable installs table directly, bypassing the engine.
func (r *Router) SetRoutingTable(table model.RoutingTable) { r.routingTable = table }

// EnableTracepoints enables tps on the router's tracer.
func (r *Router) EnableTracepoints(tps ...string) error {
	for _, tp := range tps {
		if err := r.tracer.Enable(tp); err != nil {
			return fmt.Errorf("router %s: %w", r.id, err)
		}
	}
	return nil
}

// Start registers the router and starts its engine.
func (r *Router) Start() error {
	if r.started {
		return nil
	}
	if err := r.sim.Routers.Register(r); err != nil {
		return err
	}
	r.started = true
	if r.engine != nil {
		r.engine.Start()
	}
	return nil
}

// Stop stops the engine, unregisters the router and closes its tracer.
func (r *Router) Stop() error {
	if !r.started {
		return r.tracer.Close()
	}
	if r.engine != nil {
		r.engine.Stop()
	}
	r.sim.Routers.Remove(r)
	r.started = false
	return r.tracer.Close()
}

// Tick advances the protocol engine by one second.
func (r *Router) Tick() {
	if r.engine != nil {
		r.engine.Tick()
	}
}

// Neighbors returns the routers currently in range on iface.
func (r *Router) Neighbors(iface string) []*Router {
	cfg, ok := r.interfaces[iface]
	if !ok {
		return nil
	}
	models := r.model.Neighbors(cfg.Range)
	out := make([]*Router, 0, len(models))
	for _, m := range models {
		if m.router != nil {
			out = append(out, m.router)
		}
	}
	return out
}

// IsConnected reports whether other is currently a neighbor on iface.
func (r *Router) IsConnected(other *Router, iface string) bool {
	for _, n := range r.Neighbors(iface) {
		if n == other {
			return true
		}
	}
	return false
}

// OnRoutingTableUpdate implements EngineHost.
func (r *Router) OnRoutingTableUpdate(table model.RoutingTable) {
	r.log.Debug(context.Background(), "routing table update", logging.Tick(r.Now()))
	if table == nil {
		table = model.RoutingTable{}
	}
	r.routingTable = table
}

// OnTransmit implements EngineHost. Only neighbors connected right now
// receive the message, each through the middleware chain.
func (r *Router) OnTransmit(iface string, msg []byte) {
	r.log.Debug(context.Background(), "msg transmission",
		logging.String("interface", iface), logging.Int("size", len(msg)), logging.Tick(r.Now()))
	r.sim.Metrics.RoutingMessage(MsgTransmitted, len(msg))

	for _, n := range r.Neighbors(iface) {
		copied := append([]byte(nil), msg...)
		out := r.sim.Middleware.ForwardRoutingMsg(r, n, iface, copied)
		if out == nil {
			r.sim.Metrics.RoutingMessage(MsgVetoed, len(msg))
			continue
		}
		n.Receive(iface, out)
	}
}

// Now implements EngineHost.
func (r *Router) Now() int { return r.sim.Now() }

// Receive hands an inbound routing message to the engine unless the
// interface's receive loss swallows it. Exactly one random value is drawn
// per received message.
func (r *Router) Receive(iface string, msg []byte) {
	cfg, ok := r.interfaces[iface]
	if !ok {
		r.log.Debug(context.Background(), "message on unknown interface",
			logging.String("interface", iface), logging.Tick(r.Now()))
		return
	}
	if cfg.RxLoss > r.sim.Rand().Float64() {
		r.sim.Metrics.RoutingMessage(MsgLost, len(msg))
		return
	}
	r.sim.Metrics.RoutingMessage(MsgReceived, len(msg))
	if r.engine != nil {
		r.engine.Receive(iface, msg)
	}
}
