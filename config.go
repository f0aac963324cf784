package main

import (
	"net"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Stratum listener.
	ListenAddr string
	MaxConns   int // 0 = unlimited

	// Ravencoin node RPC.
	RPCHost    string
	RPCPort    int
	RPCUser    string
	RPCPass    string
	RPCTimeout time.Duration // per request
	Testnet    bool

	// Optional hashblock publisher; triggers an immediate template poll.
	ZMQHashBlockAddr string

	// Template polling and candidate assembly.
	PollInterval        time.Duration
	RerollTicks         int // ticks between forced coinbase rebuilds
	CoinbaseTag         string
	TimestampHold       bool
	TimestampHoldMargin time.Duration

	// Ambient services.
	DataDir          string
	LogLevel         string
	LogStdout        bool
	MetricsListen    string // empty = disabled
	DiscordBotToken  string
	DiscordChannelID string
}

func (cfg Config) RPCURL() string {
	return "http://" + net.JoinHostPort(strings.TrimSpace(cfg.RPCHost), strconv.Itoa(cfg.RPCPort))
}

func (cfg Config) NetworkName() string {
	if cfg.Testnet {
		return "testnet"
	}
	return "mainnet"
}

// EffectiveConfig is the loggable view of Config with secrets masked.
type EffectiveConfig struct {
	ListenAddr          string `json:"listen_addr"`
	MaxConns            int    `json:"max_conns"`
	RPCURL              string `json:"rpc_url"`
	RPCUser             string `json:"rpc_user"`
	RPCPassSet          bool   `json:"rpc_pass_set"`
	RPCTimeout          string `json:"rpc_timeout"`
	Network             string `json:"network"`
	ZMQHashBlockAddr    string `json:"zmq_hashblock_addr,omitempty"`
	PollInterval        string `json:"poll_interval"`
	RerollTicks         int    `json:"reroll_ticks"`
	CoinbaseTag         string `json:"coinbase_tag"`
	TimestampHold       bool   `json:"timestamp_hold"`
	TimestampHoldMargin string `json:"timestamp_hold_margin"`
	DataDir             string `json:"data_dir"`
	LogLevel            string `json:"log_level"`
	MetricsListen       string `json:"metrics_listen,omitempty"`
	DiscordEnabled      bool   `json:"discord_enabled"`
}

func (cfg Config) Effective() EffectiveConfig {
	return EffectiveConfig{
		ListenAddr:          cfg.ListenAddr,
		MaxConns:            cfg.MaxConns,
		RPCURL:              cfg.RPCURL(),
		RPCUser:             cfg.RPCUser,
		RPCPassSet:          strings.TrimSpace(cfg.RPCPass) != "",
		RPCTimeout:          cfg.RPCTimeout.String(),
		Network:             cfg.NetworkName(),
		ZMQHashBlockAddr:    cfg.ZMQHashBlockAddr,
		PollInterval:        cfg.PollInterval.String(),
		RerollTicks:         cfg.RerollTicks,
		CoinbaseTag:         cfg.CoinbaseTag,
		TimestampHold:       cfg.TimestampHold,
		TimestampHoldMargin: cfg.TimestampHoldMargin.String(),
		DataDir:             cfg.DataDir,
		LogLevel:            cfg.LogLevel,
		MetricsListen:       cfg.MetricsListen,
		DiscordEnabled:      cfg.DiscordBotToken != "" && cfg.DiscordChannelID != "",
	}
}
