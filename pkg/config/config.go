// Package config implements Configuration (spec §4.12, C11): merged
// precedence across a base YAML file, an optional local override file,
// environment variables, and CLI flags, plus derivation of the cluster
// peer table. YAML parsing follows the teacher's manifest-apply use of
// gopkg.in/yaml.v3; flag binding follows its cobra command layout.
package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// HostSpec is one entry of the cluster's host table: a host and the
// contiguous block of ports it runs worker processes on.
type HostSpec struct {
	Host  string `yaml:"host"`
	Ports []int  `yaml:"ports"`
}

// File is the shape of both the base and local YAML configuration files.
type File struct {
	DataDir     string              `yaml:"dataDir"`
	LogLevel    string              `yaml:"logLevel"`
	LogJSON     bool                `yaml:"logJSON"`
	MetricsAddr string              `yaml:"metricsAddr"`
	BasePort    int                 `yaml:"basePort"`
	Hosts       map[string]HostSpec `yaml:"hosts"`
}

// Config is the fully resolved, merged runtime configuration.
type Config struct {
	DataDir     string
	LogLevel    string
	LogJSON     bool
	MetricsAddr string
	BasePort    int
	Hosts       map[string]HostSpec

	// Peers is the derived flat peer table: "<hostID>-NN" -> (host, port).
	Peers map[string]PeerAddr
}

// PeerAddr is one derived peer's dial address.
type PeerAddr struct {
	Host string
	Port int
}

func defaults() File {
	return File{
		DataDir:     "./data",
		LogLevel:    "info",
		LogJSON:     false,
		MetricsAddr: "",
		BasePort:    9000,
	}
}

// Load merges, in increasing precedence, built-in defaults, the base YAML
// file, an optional local YAML file, CLI flags bound to cmd, and
// environment variables (WORLDGS_*), and derives the peer table.
func Load(basePath, localPath string, cmd *cobra.Command) (*Config, error) {
	merged := defaults()

	if basePath != "" {
		if err := mergeFile(&merged, basePath); err != nil {
			return nil, err
		}
	}
	if localPath != "" {
		if _, err := os.Stat(localPath); err == nil {
			if err := mergeFile(&merged, localPath); err != nil {
				return nil, err
			}
		}
	}

	if cmd != nil {
		mergeFlags(&merged, cmd)
	}
	mergeEnv(&merged)

	cfg := &Config{
		DataDir:     merged.DataDir,
		LogLevel:    merged.LogLevel,
		LogJSON:     merged.LogJSON,
		MetricsAddr: merged.MetricsAddr,
		BasePort:    merged.BasePort,
		Hosts:       merged.Hosts,
	}
	cfg.Peers = derivePeers(cfg.Hosts, cfg.BasePort)
	return cfg, nil
}

func mergeFile(dst *File, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyFile(dst, f)
	return nil
}

func applyFile(dst *File, src File) {
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogJSON {
		dst.LogJSON = src.LogJSON
	}
	if src.MetricsAddr != "" {
		dst.MetricsAddr = src.MetricsAddr
	}
	if src.BasePort != 0 {
		dst.BasePort = src.BasePort
	}
	if src.Hosts != nil {
		dst.Hosts = src.Hosts
	}
}

func mergeEnv(dst *File) {
	if v := os.Getenv("WORLDGS_DATA_DIR"); v != "" {
		dst.DataDir = v
	}
	if v := os.Getenv("WORLDGS_LOG_LEVEL"); v != "" {
		dst.LogLevel = v
	}
	if v := os.Getenv("WORLDGS_LOG_JSON"); v != "" {
		dst.LogJSON = v == "true" || v == "1"
	}
	if v := os.Getenv("WORLDGS_METRICS_ADDR"); v != "" {
		dst.MetricsAddr = v
	}
	if v := os.Getenv("WORLDGS_BASE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			dst.BasePort = n
		}
	}
}

func mergeFlags(dst *File, cmd *cobra.Command) {
	if v, err := cmd.Flags().GetString("data-dir"); err == nil && cmd.Flags().Changed("data-dir") {
		dst.DataDir = v
	}
	if v, err := cmd.Flags().GetString("log-level"); err == nil && cmd.Flags().Changed("log-level") {
		dst.LogLevel = v
	}
	if v, err := cmd.Flags().GetBool("log-json"); err == nil && cmd.Flags().Changed("log-json") {
		dst.LogJSON = v
	}
	if v, err := cmd.Flags().GetString("metrics-addr"); err == nil && cmd.Flags().Changed("metrics-addr") {
		dst.MetricsAddr = v
	}
	if v, err := cmd.Flags().GetInt("base-port"); err == nil && cmd.Flags().Changed("base-port") {
		dst.BasePort = v
	}
}

// derivePeers flattens the host table into "<hostID>-NN" peer ids, NN being
// the zero-based index of the port in the host's ascending port list. Each
// peer keeps its configured port; only a port of 0 is replaced by
// basePort+1+index.
func derivePeers(hosts map[string]HostSpec, basePort int) map[string]PeerAddr {
	peers := make(map[string]PeerAddr)
	hostIDs := make([]string, 0, len(hosts))
	for id := range hosts {
		hostIDs = append(hostIDs, id)
	}
	sort.Strings(hostIDs)

	for _, hostID := range hostIDs {
		spec := hosts[hostID]
		ports := append([]int(nil), spec.Ports...)
		sort.Ints(ports)
		for i, port := range ports {
			peerID := fmt.Sprintf("%s-%02d", hostID, i)
			if port == 0 {
				port = basePort + 1 + i
			}
			peers[peerID] = PeerAddr{Host: spec.Host, Port: port}
		}
	}
	return peers
}

// IsLocalHost reports whether host matches one of this machine's
// interface addresses (including loopback names), used to decide which
// configured hosts this process should spawn workers for.
func IsLocalHost(host string) (bool, error) {
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true, nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false, fmt.Errorf("config: enumerate interfaces: %w", err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.String() == host {
			return true, nil
		}
	}
	return false, nil
}

// BindFlags registers the CLI flags mergeFlags reads, matching the
// teacher's persistent-flag registration style.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("data-dir", "", "Data directory for local storage")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9100")
	cmd.PersistentFlags().Int("base-port", 0, "Base port for derived peer service ports")
}

// Reset is a no-op hook for tests; Config carries no package-level mutable
// state today, but callers depend on this existing so a future cache can
// be added without touching call sites.
func Reset() {}
