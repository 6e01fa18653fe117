package model

import (
	"errors"
	"fmt"
)

// ErrInvalidEngineConfig wraps every engine configuration validation error.
var ErrInvalidEngineConfig = errors.New("invalid engine configuration")

// Default engine timing, in ticks.
const (
	DefaultMsgInterval = 30
	DefaultMcastV4     = "224.0.1.1"
	DefaultMcastV6     = "ff05:0:0:0:0:0:0:2"
)

// EngineInterface is the protocol engine's view of a router interface.
type EngineInterface struct {
	Name           string         `json:"name"`
	AddrV4         string         `json:"addr-v4"`
	AddrV6         string         `json:"addr-v6"`
	LinkAttributes LinkAttributes `json:"link-attributes"`
	AsymmDetection bool           `json:"asymm-detection"`
}

// Network is a prefix originated by a router.
type Network struct {
	Proto     string `json:"proto"`
	Prefix    string `json:"prefix"`
	PrefixLen int    `json:"prefix-len"`
}

// EngineConfig is handed to the protocol engine at construction.
//
// Optional keys: MsgInterval (default 30), MsgIntervalJitter (default
// MsgInterval/4), HoldTime (default 3*MsgInterval+1) and
// MaxFullUpdateInterval (0 sends every message in full).
type EngineConfig struct {
	ID            string            `json:"id"`
	McastV4TxAddr string            `json:"mcast-v4-tx-addr"`
	McastV6TxAddr string            `json:"mcast-v6-tx-addr"`
	Interfaces    []EngineInterface `json:"interfaces"`
	Networks      []Network         `json:"networks"`

	MsgInterval           int `json:"rtn-msg-interval,omitempty"`
	MsgIntervalJitter     int `json:"rtn-msg-interval-jitter,omitempty"`
	HoldTime              int `json:"rtn-msg-hold-time,omitempty"`
	MaxFullUpdateInterval int `json:"max-full-update-interval,omitempty"`
}

// EngineOverrides carries the optional keys a scenario may override.
// Zero values leave the router's generated configuration untouched.
type EngineOverrides struct {
	MsgInterval           int  `json:"rtn-msg-interval,omitempty" yaml:"msg_interval"`
	MsgIntervalJitter     int  `json:"rtn-msg-interval-jitter,omitempty" yaml:"msg_interval_jitter"`
	HoldTime              int  `json:"rtn-msg-hold-time,omitempty" yaml:"hold_time"`
	MaxFullUpdateInterval *int `json:"max-full-update-interval,omitempty" yaml:"max_full_update_interval"`
}

// Apply copies the set overrides onto cfg.
func (o EngineOverrides) Apply(cfg *EngineConfig) {
	if o.MsgInterval > 0 {
		cfg.MsgInterval = o.MsgInterval
	}
	if o.MsgIntervalJitter > 0 {
		cfg.MsgIntervalJitter = o.MsgIntervalJitter
	}
	if o.HoldTime > 0 {
		cfg.HoldTime = o.HoldTime
	}
	if o.MaxFullUpdateInterval != nil {
		cfg.MaxFullUpdateInterval = *o.MaxFullUpdateInterval
	}
}

// WithDefaults returns a copy of cfg with unset optional keys filled in.
func (cfg EngineConfig) WithDefaults() EngineConfig {
	if cfg.McastV4TxAddr == "" {
		cfg.McastV4TxAddr = DefaultMcastV4
	}
	if cfg.McastV6TxAddr == "" {
		cfg.McastV6TxAddr = DefaultMcastV6
	}
	if cfg.MsgInterval == 0 {
		cfg.MsgInterval = DefaultMsgInterval
	}
	if cfg.MsgIntervalJitter == 0 {
		cfg.MsgIntervalJitter = cfg.MsgInterval / 4
	}
	if cfg.HoldTime == 0 {
		cfg.HoldTime = 3*cfg.MsgInterval + 1
	}
	return cfg
}

// Validate checks the structural invariants of the configuration.
func (cfg EngineConfig) Validate() error {
	if cfg.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEngineConfig)
	}
	seen := make(map[string]bool, len(cfg.Interfaces))
	for _, iface := range cfg.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("%w: interface without name", ErrInvalidEngineConfig)
		}
		if seen[iface.Name] {
			return fmt.Errorf("%w: duplicate interface %q", ErrInvalidEngineConfig, iface.Name)
		}
		seen[iface.Name] = true
	}
	if cfg.MsgInterval < 0 || cfg.MsgIntervalJitter < 0 || cfg.HoldTime < 0 || cfg.MaxFullUpdateInterval < 0 {
		return fmt.Errorf("%w: negative timing value", ErrInvalidEngineConfig)
	}
	if cfg.MsgInterval > 0 && cfg.HoldTime > 0 && cfg.HoldTime <= cfg.MsgInterval {
		return fmt.Errorf("%w: hold time %d must exceed message interval %d",
			ErrInvalidEngineConfig, cfg.HoldTime, cfg.MsgInterval)
	}
	return nil
}
