// Package linkstate is a small link-state routing protocol used to drive
// simulation runs end to end. It learns neighbors from periodic messages,
// floods advertisements and computes one routing table per policy.
package linkstate

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/signalsfoundry/mesh-simulator/core"
	"github.com/signalsfoundry/mesh-simulator/internal/tracepoint"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// Tracepoints emitted by the engine.
const (
	TraceTxMsg      = "tx.msg"
	TraceRxMsg      = "rx.msg"
	TraceRxMsgValid = "rx.msg.valid"
	TraceRtnTable   = "rtn.table"
)

// Policies are the routing tables computed by default.
var Policies = []string{model.PolicyLowestLoss, model.PolicyHighestBandwidth}

// ErrNoRandomSource is returned by NewFactory without a random source.
var ErrNoRandomSource = errors.New("linkstate: nil random source")

type neighbor struct {
	addr     string
	lastSeen int
}

type lsaEntry struct {
	adv     Advertisement
	updated int
}

// Engine is a link-state core.ProtocolEngine.
type Engine struct {
	host   core.EngineHost
	cfg    model.EngineConfig
	tracer tracepoint.Tracer
	rng    *rand.Rand

	ifaces map[string]model.EngineInterface

	running  bool
	seq      int
	msgCount int
	nextTx   int

	neighbors map[string]map[string]*neighbor
	lsdb      map[string]*lsaEntry
	dirty     bool
}

// NewFactory returns a core.EngineFactory whose engines draw their
// timing jitter from rng. Pass the run's random source to keep runs
// reproducible.
func NewFactory(rng *rand.Rand) core.EngineFactory {
	return func(host core.EngineHost, cfg model.EngineConfig, tracer tracepoint.Tracer) (core.ProtocolEngine, error) {
		return New(host, cfg, tracer, rng)
	}
}

// New validates cfg and returns a stopped engine.
func New(host core.EngineHost, cfg model.EngineConfig, tracer tracepoint.Tracer, rng *rand.Rand) (*Engine, error) {
	if rng == nil {
		return nil, ErrNoRandomSource
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tracer == nil {
		tracer = tracepoint.Noop()
	}
	e := &Engine{
		host:      host,
		cfg:       cfg,
		tracer:    tracer,
		rng:       rng,
		ifaces:    make(map[string]model.EngineInterface, len(cfg.Interfaces)),
		neighbors: make(map[string]map[string]*neighbor, len(cfg.Interfaces)),
		lsdb:      make(map[string]*lsaEntry),
	}
	for _, iface := range cfg.Interfaces {
		e.ifaces[iface.Name] = iface
		e.neighbors[iface.Name] = make(map[string]*neighbor)
	}
	return e, nil
}

// Start schedules the first transmission within the jitter window.
func (e *Engine) Start() {
	e.running = true
	e.nextTx = e.host.Now() + e.rng.IntN(e.cfg.MsgIntervalJitter+1)
	e.dirty = true
}

// Stop silences the engine. Received messages are ignored afterwards.
func (e *Engine) Stop() {
	e.running = false
}

// Tick expires stale state, transmits when due and publishes new routing
// tables.
func (e *Engine) Tick() {
	if !e.running {
		return
	}
	now := e.host.Now()
	e.expire(now)
	if now >= e.nextTx {
		e.transmit(now)
		e.nextTx = now + e.nextInterval()
	}
	if e.dirty {
		e.dirty = false
		table := e.computeRoutes()
		e.tracer.Log(TraceRtnTable, table, now)
		e.host.OnRoutingTableUpdate(table)
	}
}

func (e *Engine) nextInterval() int {
	j := e.cfg.MsgIntervalJitter
	d := e.cfg.MsgInterval
	if j > 0 {
		d += e.rng.IntN(2*j+1) - j
	}
	return max(d, 1)
}

// remoteHoldTime bounds the age of foreign advertisements. With partial
// updates they are only refreshed by every full message.
func (e *Engine) remoteHoldTime() int {
	return e.cfg.HoldTime * max(1, e.cfg.MaxFullUpdateInterval)
}

func (e *Engine) expire(now int) {
	for _, nbrs := range e.neighbors {
		for id, n := range nbrs {
			if now-n.lastSeen > e.cfg.HoldTime {
				delete(nbrs, id)
				e.dirty = true
			}
		}
	}
	hold := e.remoteHoldTime()
	for id, entry := range e.lsdb {
		if now-entry.updated > hold {
			delete(e.lsdb, id)
			e.dirty = true
		}
	}
}

// ownAdvertisement describes the current adjacencies of this router.
func (e *Engine) ownAdvertisement() Advertisement {
	adv := Advertisement{
		Router:   e.cfg.ID,
		Seq:      e.seq,
		Networks: append([]model.Network(nil), e.cfg.Networks...),
	}
	for _, iface := range e.cfg.Interfaces {
		ids := sortedKeys(e.neighbors[iface.Name])
		for _, id := range ids {
			adv.Links = append(adv.Links, Link{
				Neighbor:  id,
				Interface: iface.Name,
				Bandwidth: iface.LinkAttributes.Bandwidth,
				Loss:      iface.LinkAttributes.Loss,
			})
		}
	}
	return adv
}

func (e *Engine) transmit(now int) {
	e.seq++
	own := e.ownAdvertisement()

	full := e.cfg.MaxFullUpdateInterval == 0 || e.msgCount%e.cfg.MaxFullUpdateInterval == 0
	e.msgCount++

	adverts := []Advertisement{own}
	msgType := MsgPartial
	if full {
		msgType = MsgFull
		for _, id := range sortedKeys(e.lsdb) {
			adverts = append(adverts, e.lsdb[id].adv)
		}
	}

	for _, iface := range e.cfg.Interfaces {
		msg := Message{
			Type:      msgType,
			ID:        e.cfg.ID,
			Seq:       e.seq,
			Interface: iface.Name,
			AddrV4:    iface.AddrV4,
			AddrV6:    iface.AddrV6,
			Adverts:   adverts,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		e.tracer.Log(TraceTxMsg, msg, now)
		e.host.OnTransmit(iface.Name, data)
	}
}

// Receive processes one routing message from a neighbor on iface.
func (e *Engine) Receive(iface string, data []byte) {
	if !e.running {
		return
	}
	now := e.host.Now()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		e.tracer.Log(TraceRxMsg, map[string]string{"error": err.Error()}, now)
		return
	}
	e.tracer.Log(TraceRxMsg, msg, now)

	nbrs, ok := e.neighbors[iface]
	if !ok || msg.ID == "" || msg.ID == e.cfg.ID || msg.AddrV4 == "" {
		return
	}
	e.tracer.Log(TraceRxMsgValid, msg, now)

	if n, known := nbrs[msg.ID]; known {
		if n.addr != msg.AddrV4 {
			n.addr = msg.AddrV4
			e.dirty = true
		}
		n.lastSeen = now
	} else {
		nbrs[msg.ID] = &neighbor{addr: msg.AddrV4, lastSeen: now}
		e.dirty = true
	}

	for _, adv := range msg.Adverts {
		if adv.Router == e.cfg.ID || adv.Router == "" {
			continue
		}
		cur, known := e.lsdb[adv.Router]
		if known && cur.adv.Seq >= adv.Seq {
			continue
		}
		if !known || !sameState(cur.adv, adv) {
			e.dirty = true
		}
		e.lsdb[adv.Router] = &lsaEntry{adv: adv, updated: now}
	}
}

// sameState reports whether two advertisements of a router describe the
// same topology.
func sameState(a, b Advertisement) bool {
	return slices.Equal(a.Links, b.Links) && slices.Equal(a.Networks, b.Networks)
}

// Neighbors returns the ids of the neighbors currently known on iface.
func (e *Engine) Neighbors(iface string) []string {
	return sortedKeys(e.neighbors[iface])
}

// weight returns the edge cost of a link under policy; ok is false for
// links unusable under it.
func weight(policy string, l Link) (float64, bool) {
	switch policy {
	case model.PolicyLowestLoss:
		return l.Loss, l.Loss >= 0
	case model.PolicyHighestBandwidth:
		if l.Bandwidth <= 0 {
			return 0, false
		}
		return 1 / l.Bandwidth, true
	default:
		return 0, false
	}
}

// computeRoutes runs Dijkstra over the link-state database once per
// policy and maps every foreign network to the first hop towards its
// originator.
func (e *Engine) computeRoutes() model.RoutingTable {
	own := e.ownAdvertisement()
	adverts := map[string]Advertisement{own.Router: own}
	for id, entry := range e.lsdb {
		adverts[id] = entry.adv
	}

	ids := sortedKeys(adverts)
	index := make(map[string]int64, len(ids))
	for i, id := range ids {
		index[id] = int64(i)
	}

	// links[from][to] lists the usable interfaces for each hop.
	links := make(map[string]map[string][]Link, len(adverts))
	for _, id := range ids {
		for _, l := range adverts[id].Links {
			if _, known := index[l.Neighbor]; !known || l.Neighbor == id {
				continue
			}
			if links[id] == nil {
				links[id] = make(map[string][]Link)
			}
			links[id][l.Neighbor] = append(links[id][l.Neighbor], l)
		}
	}
	confirmed := func(from, to, iface string) bool {
		if !e.requiresSymmetry(iface) {
			return true
		}
		return slices.ContainsFunc(links[to][from], func(l Link) bool { return l.Interface == iface })
	}

	table := make(model.RoutingTable, len(Policies))
	self := simple.Node(index[e.cfg.ID])
	for _, policy := range Policies {
		g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
		for _, id := range ids {
			g.AddNode(simple.Node(index[id]))
		}
		// best[to] is the cheapest own interface towards a neighbor.
		best := make(map[string]Link)
		for _, from := range ids {
			for _, to := range sortedKeys(links[from]) {
				w, found := math.Inf(1), false
				for _, l := range links[from][to] {
					if !confirmed(from, to, l.Interface) {
						continue
					}
					lw, ok := weight(policy, l)
					if !ok || lw >= w {
						continue
					}
					w, found = lw, true
					if from == e.cfg.ID {
						best[to] = l
					}
				}
				if found {
					g.SetWeightedEdge(simple.WeightedEdge{
						F: simple.Node(index[from]),
						T: simple.Node(index[to]),
						W: w,
					})
				}
			}
		}

		tree := path.DijkstraFrom(self, g)
		entries := []model.RouteEntry{}
		for _, id := range ids {
			if id == e.cfg.ID {
				continue
			}
			nodes, _ := tree.To(index[id])
			if len(nodes) < 2 {
				continue
			}
			first := ids[nodes[1].ID()]
			link, ok := best[first]
			if !ok {
				continue
			}
			nbr, ok := e.neighbors[link.Interface][first]
			if !ok {
				continue
			}
			for _, n := range adverts[id].Networks {
				entries = append(entries, model.RouteEntry{
					Prefix:    n.Prefix,
					PrefixLen: n.PrefixLen,
					NextHop:   nbr.addr,
					Interface: link.Interface,
				})
			}
		}
		slices.SortFunc(entries, func(a, b model.RouteEntry) int {
			switch {
			case a.Prefix < b.Prefix:
				return -1
			case a.Prefix > b.Prefix:
				return 1
			}
			return 0
		})
		table[policy] = entries
	}
	return table
}

func (e *Engine) requiresSymmetry(iface string) bool {
	cfg, ok := e.ifaces[iface]
	return ok && cfg.AsymmDetection
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
