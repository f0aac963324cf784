package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
)

// errUsage marks command-line problems that should print usage.
var errUsage = errors.New("invalid command line")

const positionalUsage = "proxy_port node_ip node_username node_password node_port [testnet]"

// parseCommandLine layers defaults, the optional TOML file, explicit flags and
// finally the legacy positional arguments, then validates the result.
func parseCommandLine(args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet(poolSoftwareName, flag.ContinueOnError)
	fs.SetOutput(output)

	configPath := fs.String("config", "", "path to config.toml (default "+defaultConfigPath()+" when present)")
	listen := fs.String("listen", "", "stratum listen address (host:port)")
	maxConns := fs.Int("max-conns", 0, "maximum concurrent miner connections (0 = unlimited)")
	rpcHost := fs.String("rpc-host", "", "node RPC host")
	rpcPort := fs.Int("rpc-port", 0, "node RPC port")
	rpcUser := fs.String("rpc-user", "", "node RPC username")
	rpcPass := fs.String("rpc-pass", "", "node RPC password")
	rpcTimeout := fs.Duration("rpc-timeout", 0, "per-request node RPC timeout")
	testnet := fs.Bool("testnet", false, "use testnet address prefixes and default RPC port")
	zmqAddr := fs.String("zmq-hashblock", "", "optional node ZMQ hashblock endpoint (tcp://host:port)")
	pollInterval := fs.Duration("poll-interval", 0, "getblocktemplate polling interval")
	logLevel := fs.String("log-level", "", "log level (debug/info/warn/error)")
	stdout := fs.Bool("stdout", false, "mirror logs to stdout")
	dataDir := fs.String("data-dir", "", "directory for logs and the block journal")
	metricsListen := fs.String("metrics-listen", "", "prometheus /metrics listen address (empty = disabled)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] [%s]\n\nflags:\n", poolSoftwareName, positionalUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	path := strings.TrimSpace(*configPath)
	explicitPath := path != ""
	if !explicitPath {
		path = defaultConfigPath()
	}
	fc, ok, err := loadTOMLFile[baseFileConfig](path)
	switch {
	case err != nil:
		return Config{}, err
	case ok:
		applyBaseConfig(&cfg, *fc)
	case explicitPath:
		return Config{}, fmt.Errorf("config file %s does not exist", path)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["testnet"] {
		cfg.Testnet = *testnet
		if cfg.Testnet && !set["rpc-port"] && cfg.RPCPort == defaultMainnetRPCPort {
			cfg.RPCPort = defaultTestnetRPCPort
		}
	}
	if set["listen"] {
		cfg.ListenAddr = *listen
	}
	if set["max-conns"] {
		cfg.MaxConns = *maxConns
	}
	if set["rpc-host"] {
		cfg.RPCHost = *rpcHost
	}
	if set["rpc-port"] {
		cfg.RPCPort = *rpcPort
	}
	if set["rpc-user"] {
		cfg.RPCUser = *rpcUser
	}
	if set["rpc-pass"] {
		cfg.RPCPass = *rpcPass
	}
	if set["rpc-timeout"] {
		cfg.RPCTimeout = *rpcTimeout
	}
	if set["zmq-hashblock"] {
		cfg.ZMQHashBlockAddr = *zmqAddr
	}
	if set["poll-interval"] {
		cfg.PollInterval = *pollInterval
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["stdout"] {
		cfg.LogStdout = *stdout
	}
	if set["data-dir"] {
		cfg.DataDir = *dataDir
	}
	if set["metrics-listen"] {
		cfg.MetricsListen = *metricsListen
	}

	if fs.NArg() > 0 {
		if err := applyPositionalArgs(&cfg, fs.Args()); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	return cfg, nil
}

// applyPositionalArgs accepts the original proxy's argument order:
// proxy_port node_ip node_username node_password node_port [testnet].
func applyPositionalArgs(cfg *Config, args []string) error {
	if len(args) < 5 || len(args) > 6 {
		return fmt.Errorf("%w: expected %s", errUsage, positionalUsage)
	}
	proxyPort, err := parsePort(args[0])
	if err != nil {
		return fmt.Errorf("%w: proxy_port: %w", errUsage, err)
	}
	nodePort, err := parsePort(args[4])
	if err != nil {
		return fmt.Errorf("%w: node_port: %w", errUsage, err)
	}
	cfg.ListenAddr = net.JoinHostPort("0.0.0.0", strconv.Itoa(proxyPort))
	cfg.RPCHost = args[1]
	cfg.RPCUser = args[2]
	cfg.RPCPass = args[3]
	cfg.RPCPort = nodePort
	if len(args) == 6 {
		cfg.Testnet = parseLooseBool(args[5])
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// parseLooseBool treats any non-empty value as true unless it parses as a
// false boolean ("false", "0", ...).
func parseLooseBool(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return true
}

func loadTOMLFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg T
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, true, nil
}
