package core

import (
	"testing"

	"github.com/signalsfoundry/mesh-simulator/internal/tracepoint"
	"github.com/signalsfoundry/mesh-simulator/model"
)

const testTos = model.PolicyLowestLoss

func radio(rangeR float64) []model.InterfaceConfig {
	return []model.InterfaceConfig{{
		Name:           "radio0",
		Range:          rangeR,
		LinkAttributes: model.LinkAttributes{Bandwidth: 1000, Loss: 1},
	}}
}

func newTestArea(t *testing.T, sim *Sim, w, h float64) *MobilityArea {
	t.Helper()
	area, err := NewMobilityArea(sim, w, h)
	if err != nil {
		t.Fatalf("NewMobilityArea: %v", err)
	}
	return area
}

func newTestRouter(t *testing.T, sim *Sim, area *MobilityArea, id string, x, y, rangeR float64, engine EngineFactory) *Router {
	t.Helper()
	m, err := area.AddModel(At(x, y))
	if err != nil {
		t.Fatalf("AddModel(%v, %v): %v", x, y, err)
	}
	r, err := NewRouter(sim, id, m, RouterOptions{
		Interfaces: radio(rangeR),
		Tracer:     tracepoint.NoopFactory(),
		Engine:     engine,
	})
	if err != nil {
		t.Fatalf("NewRouter(%s): %v", id, err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start(%s): %v", id, err)
	}
	return r
}

type fakeEngine struct {
	host     EngineHost
	started  bool
	stopped  bool
	ticks    int
	received []string
}

func (e *fakeEngine) Start() { e.started = true }
func (e *fakeEngine) Stop()  { e.stopped = true }
func (e *fakeEngine) Tick()  { e.ticks++ }

func (e *fakeEngine) Receive(iface string, msg []byte) {
	e.received = append(e.received, iface+":"+string(msg))
}

func fakeEngineFactory(engines map[string]*fakeEngine) EngineFactory {
	return func(host EngineHost, cfg model.EngineConfig, _ tracepoint.Tracer) (ProtocolEngine, error) {
		e := &fakeEngine{host: host}
		engines[cfg.ID] = e
		return e, nil
	}
}

func addr(r *Router) string {
	return r.interfaces["radio0"].AddrV4
}

func prefix(r *Router) string {
	return r.networks[0].Prefix
}
