package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

// ensureExampleConfig writes data/config/examples/config.toml.example with
// the current defaults so operators have a starting point.
func ensureExampleConfig(dataDir string) {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	examplesDir := filepath.Join(dataDir, "config", "examples")
	if err := os.MkdirAll(examplesDir, 0o755); err != nil {
		logger.Warn("create examples directory failed", "dir", examplesDir, "error", err)
		return
	}
	data, err := exampleConfigBytes()
	if err != nil {
		logger.Warn("encode config example failed", "error", err)
		return
	}
	path := filepath.Join(examplesDir, "config.toml.example")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("write example config failed", "path", path, "error", err)
	}
}

func exampleConfigBytes() ([]byte, error) {
	cfg := defaultConfig()
	cfg.RPCUser = "rvnrpc"
	fc := buildBaseFileConfig(cfg)
	data, err := toml.Marshal(fc)
	if err != nil {
		return nil, err
	}
	out := fmt.Appendf(nil, "# Generated %s example (copy to %s and edit as needed)\n\n", poolSoftwareName, defaultConfigPath())
	out = append(out, baseConfigDocComments()...)
	return append(out, data...), nil
}

func baseConfigDocComments() []byte {
	return []byte(`# Key notes
# - [server].proxy_listen: Stratum TCP listener for miners.
# - [server].max_conns: Upper bound on concurrent miner connections (0 = unlimited).
# - [server].metrics_listen: Prometheus /metrics listener; empty disables it.
# - [node].rpc_host / rpc_port / rpc_user / rpc_pass: Ravencoin node JSON-RPC endpoint.
# - [node].rpc_timeout_ms: Per-request timeout; a timed out poll is retried next tick.
# - [node].testnet: Accept testnet (prefix 111) payout addresses instead of mainnet (60).
# - [node].zmq_hashblock_addr: Optional zmqpubhashblock endpoint for faster block pickup.
# - [mining].poll_interval_ms: getblocktemplate polling interval.
# - [mining].reroll_ticks: Polls between forced coinbase rebuilds.
# - [mining].timestamp_hold: Keep a latched header timestamp until it is
#   timestamp_hold_margin_seconds stale, instead of following the wall clock.
# - [notifications]: Optional Discord bot token and channel for found blocks.
#
`)
}
