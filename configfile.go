package prtp

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// fileConfig mirrors Config for TOML decoding. Durations are expressed in
// milliseconds on disk since BurntSushi/toml has no native time.Duration
// support; zero fields are left at DefaultConfig's value, so an operator
// only needs to name what they want to change.
type fileConfig struct {
	MSS                int     `toml:"mss"`
	RTOMillis          int     `toml:"rto_ms"`
	InitialCwnd        float64 `toml:"initial_cwnd"`
	InitialSsthresh    float64 `toml:"initial_ssthresh"`
	MaxBuffer          int     `toml:"max_buffer"`
	HandshakeTimeoutMs int     `toml:"handshake_timeout_ms"`
	ReceiverIdleMs     int     `toml:"receiver_idle_ms"`
	RecvPollMs         int     `toml:"recv_poll_ms"`
	SendPollMs         int     `toml:"send_poll_ms"`
	MaxWindowSegs      int     `toml:"max_window_segs"`
}

// LoadConfig starts from DefaultConfig and overlays whatever path names.
// An empty path is not an error: engines never touch TOML themselves, so
// callers that have no config file just keep the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return cfg, errors.Wrapf(err, "decode config file %s", path)
	}

	if fc.MSS != 0 {
		cfg.MSS = fc.MSS
	}
	if fc.RTOMillis != 0 {
		cfg.RTO = time.Duration(fc.RTOMillis) * time.Millisecond
	}
	if fc.InitialCwnd != 0 {
		cfg.InitialCwnd = fc.InitialCwnd
	}
	if fc.InitialSsthresh != 0 {
		cfg.InitialSsthresh = fc.InitialSsthresh
	}
	if fc.MaxBuffer != 0 {
		cfg.MaxBuffer = fc.MaxBuffer
	}
	if fc.HandshakeTimeoutMs != 0 {
		cfg.HandshakeTimeout = time.Duration(fc.HandshakeTimeoutMs) * time.Millisecond
	}
	if fc.ReceiverIdleMs != 0 {
		cfg.ReceiverIdle = time.Duration(fc.ReceiverIdleMs) * time.Millisecond
	}
	if fc.RecvPollMs != 0 {
		cfg.RecvPoll = time.Duration(fc.RecvPollMs) * time.Millisecond
	}
	if fc.SendPollMs != 0 {
		cfg.SendPoll = time.Duration(fc.SendPollMs) * time.Millisecond
	}
	if fc.MaxWindowSegs != 0 {
		cfg.MaxWindowSegs = fc.MaxWindowSegs
	}

	return cfg, nil
}
