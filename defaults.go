package main

import (
	"path/filepath"
	"time"
)

const (
	defaultListenAddr         = "0.0.0.0:54325"
	defaultRPCHost            = "127.0.0.1"
	defaultMainnetRPCPort     = 8766
	defaultTestnetRPCPort     = 18766
	defaultRPCTimeout         = 5 * time.Second
	defaultPollInterval       = 100 * time.Millisecond
	defaultRerollTicks        = 6000
	defaultTimestampHoldDelay = 5 * time.Minute
	defaultMaxConns           = 1024
	defaultDataDir            = "data"
	defaultLogLevel           = "info"
	defaultCoinbaseTag        = "/" + poolSoftwareName + "/"
)

func defaultConfig() Config {
	return Config{
		ListenAddr:          defaultListenAddr,
		RPCHost:             defaultRPCHost,
		RPCPort:             defaultMainnetRPCPort,
		RPCTimeout:          defaultRPCTimeout,
		PollInterval:        defaultPollInterval,
		RerollTicks:         defaultRerollTicks,
		TimestampHold:       true,
		TimestampHoldMargin: defaultTimestampHoldDelay,
		CoinbaseTag:         defaultCoinbaseTag,
		MaxConns:            defaultMaxConns,
		DataDir:             defaultDataDir,
		LogLevel:            defaultLogLevel,
	}
}

func defaultConfigPath() string {
	return filepath.Join(defaultDataDir, "config", "config.toml")
}
