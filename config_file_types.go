package main

import (
	"strings"
	"time"
)

type serverConfig struct {
	ProxyListen   string `toml:"proxy_listen"`
	MaxConns      *int   `toml:"max_conns"`
	MetricsListen string `toml:"metrics_listen"`
}

type nodeConfig struct {
	RPCHost          string `toml:"rpc_host"`
	RPCPort          *int   `toml:"rpc_port"`
	RPCUser          string `toml:"rpc_user"`
	RPCPass          string `toml:"rpc_pass"`
	RPCTimeoutMs     *int   `toml:"rpc_timeout_ms"`
	Testnet          *bool  `toml:"testnet"`
	ZMQHashBlockAddr string `toml:"zmq_hashblock_addr"`
}

type miningConfig struct {
	PollIntervalMs         *int   `toml:"poll_interval_ms"`
	RerollTicks            *int   `toml:"reroll_ticks"`
	CoinbaseTag            string `toml:"coinbase_tag"`
	TimestampHold          *bool  `toml:"timestamp_hold"`
	TimestampHoldMarginSec *int   `toml:"timestamp_hold_margin_seconds"`
}

type loggingConfig struct {
	Level  string `toml:"level"`
	Stdout *bool  `toml:"stdout"`
}

type notificationsConfig struct {
	DiscordBotToken  string `toml:"discord_bot_token"`
	DiscordChannelID string `toml:"discord_channel_id"`
}

type baseFileConfig struct {
	Server        serverConfig        `toml:"server"`
	Node          nodeConfig          `toml:"node"`
	Mining        miningConfig        `toml:"mining"`
	Logging       loggingConfig       `toml:"logging"`
	Notifications notificationsConfig `toml:"notifications"`
	DataDir       string              `toml:"data_dir"`
}

func buildBaseFileConfig(cfg Config) baseFileConfig {
	return baseFileConfig{
		Server: serverConfig{
			ProxyListen:   cfg.ListenAddr,
			MaxConns:      intPtr(cfg.MaxConns),
			MetricsListen: cfg.MetricsListen,
		},
		Node: nodeConfig{
			RPCHost:          cfg.RPCHost,
			RPCPort:          intPtr(cfg.RPCPort),
			RPCUser:          cfg.RPCUser,
			RPCTimeoutMs:     intPtr(int(cfg.RPCTimeout / time.Millisecond)),
			Testnet:          boolPtr(cfg.Testnet),
			ZMQHashBlockAddr: cfg.ZMQHashBlockAddr,
		},
		Mining: miningConfig{
			PollIntervalMs:         intPtr(int(cfg.PollInterval / time.Millisecond)),
			RerollTicks:            intPtr(cfg.RerollTicks),
			CoinbaseTag:            cfg.CoinbaseTag,
			TimestampHold:          boolPtr(cfg.TimestampHold),
			TimestampHoldMarginSec: intPtr(int(cfg.TimestampHoldMargin / time.Second)),
		},
		Logging: loggingConfig{
			Level:  cfg.LogLevel,
			Stdout: boolPtr(cfg.LogStdout),
		},
		DataDir: cfg.DataDir,
	}
}

func applyBaseConfig(cfg *Config, fc baseFileConfig) {
	if v := strings.TrimSpace(fc.Server.ProxyListen); v != "" {
		cfg.ListenAddr = v
	}
	if fc.Server.MaxConns != nil {
		cfg.MaxConns = *fc.Server.MaxConns
	}
	if v := strings.TrimSpace(fc.Server.MetricsListen); v != "" {
		cfg.MetricsListen = v
	}

	if v := strings.TrimSpace(fc.Node.RPCHost); v != "" {
		cfg.RPCHost = v
	}
	if fc.Node.Testnet != nil {
		cfg.Testnet = *fc.Node.Testnet
		if cfg.Testnet && fc.Node.RPCPort == nil {
			cfg.RPCPort = defaultTestnetRPCPort
		}
	}
	if fc.Node.RPCPort != nil {
		cfg.RPCPort = *fc.Node.RPCPort
	}
	if fc.Node.RPCUser != "" {
		cfg.RPCUser = fc.Node.RPCUser
	}
	if fc.Node.RPCPass != "" {
		cfg.RPCPass = fc.Node.RPCPass
	}
	if fc.Node.RPCTimeoutMs != nil {
		cfg.RPCTimeout = time.Duration(*fc.Node.RPCTimeoutMs) * time.Millisecond
	}
	if v := strings.TrimSpace(fc.Node.ZMQHashBlockAddr); v != "" {
		cfg.ZMQHashBlockAddr = v
	}

	if fc.Mining.PollIntervalMs != nil {
		cfg.PollInterval = time.Duration(*fc.Mining.PollIntervalMs) * time.Millisecond
	}
	if fc.Mining.RerollTicks != nil {
		cfg.RerollTicks = *fc.Mining.RerollTicks
	}
	if fc.Mining.CoinbaseTag != "" {
		cfg.CoinbaseTag = fc.Mining.CoinbaseTag
	}
	if fc.Mining.TimestampHold != nil {
		cfg.TimestampHold = *fc.Mining.TimestampHold
	}
	if fc.Mining.TimestampHoldMarginSec != nil {
		cfg.TimestampHoldMargin = time.Duration(*fc.Mining.TimestampHoldMarginSec) * time.Second
	}

	if v := strings.TrimSpace(fc.Logging.Level); v != "" {
		cfg.LogLevel = v
	}
	if fc.Logging.Stdout != nil {
		cfg.LogStdout = *fc.Logging.Stdout
	}

	if v := strings.TrimSpace(fc.Notifications.DiscordBotToken); v != "" {
		cfg.DiscordBotToken = v
	}
	if v := strings.TrimSpace(fc.Notifications.DiscordChannelID); v != "" {
		cfg.DiscordChannelID = v
	}

	if v := strings.TrimSpace(fc.DataDir); v != "" {
		cfg.DataDir = v
	}
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
