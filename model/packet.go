package model

// DefaultPacketTTL is the hop budget of every synthetic test packet.
const DefaultPacketTTL = 32

// Policy names selecting one of the parallel routing tables.
const (
	PolicyLowestLoss       = "lowest-loss"
	PolicyHighestBandwidth = "highest-bandwidth"
)

// Packet is a synthetic data packet forwarded hop by hop through the
// routing tables of the simulated routers.
type Packet struct {
	DstPrefix string   `json:"dst-prefix" yaml:"dst-prefix"`
	TTL       int      `json:"ttl" yaml:"ttl"`
	Tos       string   `json:"tos" yaml:"tos"`
	Path      []string `json:"path" yaml:"path"`
}

// NewPacket returns a packet towards dst using the routing table of tos.
func NewPacket(dst, tos string) *Packet {
	return &Packet{
		DstPrefix: dst,
		TTL:       DefaultPacketTTL,
		Tos:       tos,
		Path:      []string{},
	}
}

// Hops is the number of hops the packet travelled so far.
func (p *Packet) Hops() int {
	return DefaultPacketTTL - p.TTL
}
