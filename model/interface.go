package model

// LinkAttributes are the protocol-visible properties of an interface.
type LinkAttributes struct {
	Bandwidth float64 `json:"bandwidth" yaml:"bandwidth"`
	Loss      float64 `json:"loss" yaml:"loss"`
}

// InterfaceConfig describes one radio interface of a simulated router.
type InterfaceConfig struct {
	Name  string  `json:"name" yaml:"name"`
	Range float64 `json:"range" yaml:"range"`
	// RxLoss is the probability that a received routing message is lost.
	RxLoss         float64        `json:"rx-loss" yaml:"rx_loss"`
	LinkAttributes LinkAttributes `json:"link-attributes" yaml:"link_attributes"`
	AsymmDetection bool           `json:"asymm-detection" yaml:"asymm_detection"`
}

// DefaultInterfaces returns the wifi0/tetra0 interface pair used when a
// topology does not specify its own.
func DefaultInterfaces() []InterfaceConfig {
	return []InterfaceConfig{
		{
			Name:           "wifi0",
			Range:          50,
			RxLoss:         0.10,
			LinkAttributes: LinkAttributes{Bandwidth: 8000, Loss: 10},
		},
		{
			Name:           "tetra0",
			Range:          100,
			RxLoss:         0.05,
			LinkAttributes: LinkAttributes{Bandwidth: 1000, Loss: 5},
		},
	}
}

// CloneInterfaces returns a copy of ifaces that shares no backing array
// with it. InterfaceConfig holds only values, so the copy is independent.
func CloneInterfaces(ifaces []InterfaceConfig) []InterfaceConfig {
	out := make([]InterfaceConfig, len(ifaces))
	copy(out, ifaces)
	return out
}
