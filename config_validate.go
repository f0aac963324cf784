package main

import (
	"fmt"
	"net"
	"strings"
)

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen address is required")
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address %q: %w", cfg.ListenAddr, err)
	}
	if strings.TrimSpace(cfg.RPCHost) == "" {
		return fmt.Errorf("rpc host is required")
	}
	if cfg.RPCPort <= 0 || cfg.RPCPort > 65535 {
		return fmt.Errorf("rpc port %d out of range", cfg.RPCPort)
	}
	if strings.TrimSpace(cfg.RPCUser) == "" || strings.TrimSpace(cfg.RPCPass) == "" {
		return fmt.Errorf("rpc credentials are missing (set -rpc-user/-rpc-pass or [node] rpc_user/rpc_pass)")
	}
	if cfg.RPCTimeout <= 0 {
		return fmt.Errorf("rpc timeout must be > 0, got %s", cfg.RPCTimeout)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %s", cfg.PollInterval)
	}
	if cfg.RerollTicks <= 0 {
		return fmt.Errorf("reroll_ticks must be > 0, got %d", cfg.RerollTicks)
	}
	if cfg.TimestampHoldMargin < 0 {
		return fmt.Errorf("timestamp hold margin cannot be negative")
	}
	if cfg.MaxConns < 0 {
		return fmt.Errorf("max_conns cannot be negative")
	}
	if len(cfg.CoinbaseTag) > maxCoinbaseTagLen {
		return fmt.Errorf("coinbase_tag cannot exceed %d bytes", maxCoinbaseTagLen)
	}
	for i := 0; i < len(cfg.CoinbaseTag); i++ {
		if b := cfg.CoinbaseTag[i]; b < 0x20 || b > 0x7e {
			return fmt.Errorf("coinbase_tag must be printable ASCII")
		}
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if (cfg.DiscordBotToken == "") != (cfg.DiscordChannelID == "") {
		return fmt.Errorf("discord notifications need both discord_bot_token and discord_channel_id")
	}
	return nil
}
