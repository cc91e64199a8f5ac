package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Version of the binary, set at build time.
var Version = "dev"

// Wire-contract defaults.
const (
	DefaultPort          = 5566
	DefaultServerAddress = "0.0.0.0"

	// DefaultKeepAlive is the directory-to-client heartbeat interval.
	DefaultKeepAlive = 5 * time.Minute
	// DefaultControlKeepAlive is the client-to-directory heartbeat interval.
	DefaultControlKeepAlive = 5 * time.Second
	// DefaultPeerKeepAlive is the peer-link heartbeat interval.
	DefaultPeerKeepAlive = 60 * time.Second

	DefaultDialTimeout = 5 * time.Second

	// Local port range the client picks its reusable endpoint from.
	DefaultPortMin = 4000
	DefaultPortMax = 9000
)

// Config is the top level configuration holding both roles; a single
// file can configure a server and a client.
type Config struct {
	Server ServerConfig `yaml:"Server"`
	Client ClientConfig `yaml:"Client"`
}

// ServerConfig configures the directory server. Interval fields are in
// seconds; zero means the default.
type ServerConfig struct {
	Address    string       `yaml:"Address"`
	Port       uint16       `yaml:"Port"`
	KeepAlive  int          `yaml:"KeepAlive"`
	Prometheus BasicService `yaml:"Prometheus"`
	Pprof      BasicService `yaml:"Pprof"`
}

// BindAddress returns the host:port the listener binds to.
func (c ServerConfig) BindAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port)))
}

// KeepAliveDuration returns the heartbeat interval.
func (c ServerConfig) KeepAliveDuration() time.Duration {
	if c.KeepAlive <= 0 {
		return DefaultKeepAlive
	}
	return time.Duration(c.KeepAlive) * time.Second
}

// ClientConfig configures the peer client. Interval fields are in
// seconds; zero means the default.
type ClientConfig struct {
	ServerAddress    string `yaml:"ServerAddress"`
	PortMin          uint16 `yaml:"PortMin"`
	PortMax          uint16 `yaml:"PortMax"`
	DialTimeout      int    `yaml:"DialTimeout"`
	ControlKeepAlive int    `yaml:"ControlKeepAlive"`
	PeerKeepAlive    int    `yaml:"PeerKeepAlive"`
	// Listen additionally accepts inbound peer links on the reused local
	// endpoint. Dialing on notifications alone is enough for
	// connectivity, so this is off by default.
	Listen bool `yaml:"Listen"`
}

// DialTimeoutDuration returns the timeout for a single dial attempt.
func (c ClientConfig) DialTimeoutDuration() time.Duration {
	if c.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return time.Duration(c.DialTimeout) * time.Second
}

// ControlKeepAliveDuration returns the control-link heartbeat interval.
func (c ClientConfig) ControlKeepAliveDuration() time.Duration {
	if c.ControlKeepAlive <= 0 {
		return DefaultControlKeepAlive
	}
	return time.Duration(c.ControlKeepAlive) * time.Second
}

// PeerKeepAliveDuration returns the peer-link heartbeat interval.
func (c ClientConfig) PeerKeepAliveDuration() time.Duration {
	if c.PeerKeepAlive <= 0 {
		return DefaultPeerKeepAlive
	}
	return time.Duration(c.PeerKeepAlive) * time.Second
}

// PortRange returns the sanitized [min, max) local port range.
func (c ClientConfig) PortRange() (int, int) {
	min, max := int(c.PortMin), int(c.PortMax)
	if min == 0 {
		min = DefaultPortMin
	}
	if max <= min {
		max = min + (DefaultPortMax - DefaultPortMin)
	}
	return min, max
}

// Default returns the configuration matching the original deployment.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address: DefaultServerAddress,
			Port:    DefaultPort,
		},
		Client: ClientConfig{
			ServerAddress: fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		},
	}
}

// Load reads a yaml config from path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse config: %w", err)
	}
	return cfg, nil
}
