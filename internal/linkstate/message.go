package linkstate

import "github.com/signalsfoundry/mesh-simulator/model"

// Message types.
const (
	MsgFull    = "full"
	MsgPartial = "partial"
)

// Link is one adjacency of an advertising router.
type Link struct {
	Neighbor  string  `json:"neighbor"`
	Interface string  `json:"interface"`
	Bandwidth float64 `json:"bandwidth"`
	Loss      float64 `json:"loss"`
}

// Advertisement is the link state a router originates. A higher Seq
// replaces a lower one.
type Advertisement struct {
	Router   string          `json:"router"`
	Seq      int             `json:"seq"`
	Networks []model.Network `json:"networks"`
	Links    []Link          `json:"links"`
}

// Message is the routing message sent on one interface. Full messages
// carry every known advertisement, partial ones only the sender's own.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Seq       int             `json:"seq"`
	Interface string          `json:"interface"`
	AddrV4    string          `json:"addr-v4"`
	AddrV6    string          `json:"addr-v6"`
	Adverts   []Advertisement `json:"adverts"`
}
