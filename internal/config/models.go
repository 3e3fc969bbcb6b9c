package config

import (
	"fmt"
	"time"

	"github.com/Xatter/shellies-ng/internal/device"
	"github.com/Xatter/shellies-ng/internal/mqtt"
	"github.com/Xatter/shellies-ng/internal/options"
	"github.com/Xatter/shellies-ng/internal/rpc"
	"github.com/Xatter/shellies-ng/internal/server"
)

// currentVersion is the only config file version this build understands.
const currentVersion = 1

// Config represents the entire configuration file.
type Config struct {
	Version   int             `mapstructure:"version" yaml:"version"`
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level,omitempty"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	AutoLoad  AutoLoadConfig  `mapstructure:"auto_load" yaml:"auto_load"`
	Devices   []DeviceConfig  `mapstructure:"devices" yaml:"devices,omitempty"`
	MQTT      MQTTConfig      `mapstructure:"mqtt" yaml:"mqtt"`
}

// WebSocketConfig holds RPC client settings. Durations are in seconds.
type WebSocketConfig struct {
	ClientID       string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	RequestTimeout int    `mapstructure:"request_timeout" yaml:"request_timeout"`
	PingInterval   int    `mapstructure:"ping_interval" yaml:"ping_interval"`
	ReconnectMin   int    `mapstructure:"reconnect_min" yaml:"reconnect_min"`
	ReconnectMax   int    `mapstructure:"reconnect_max" yaml:"reconnect_max"`
}

// ServerConfig configures the server devices connect to (outbound WebSocket).
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host,omitempty"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
	Cert    string `mapstructure:"cert" yaml:"cert,omitempty"`
	Key     string `mapstructure:"key" yaml:"key,omitempty"`
	// CertPEM and KeyPEM hold the certificate inline instead of as files,
	// usually from SHELLIES_SERVER_CERT_PEM and SHELLIES_SERVER_KEY_PEM.
	CertPEM string `mapstructure:"cert_pem" yaml:"cert_pem,omitempty"`
	KeyPEM  string `mapstructure:"key_pem" yaml:"key_pem,omitempty"`
}

// DiscoveryConfig selects the discoverers started by "shellies run".
type DiscoveryConfig struct {
	Mdns        bool           `mapstructure:"mdns" yaml:"mdns"`
	MdnsTimeout int            `mapstructure:"mdns_timeout" yaml:"mdns_timeout"`
	Static      []StaticDevice `mapstructure:"static" yaml:"static,omitempty"`
}

// StaticDevice is a device known ahead of time.
type StaticDevice struct {
	ID      string `mapstructure:"id" yaml:"id"`
	Model   string `mapstructure:"model" yaml:"model,omitempty"`
	Address string `mapstructure:"address" yaml:"address,omitempty"`
}

// AutoLoadConfig controls what is fetched from a device after it is added.
type AutoLoadConfig struct {
	Status bool `mapstructure:"status" yaml:"status"`
	Config bool `mapstructure:"config" yaml:"config"`
}

// DeviceConfig holds per-device options. Unset fields keep the defaults.
type DeviceConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Exclude  *bool  `mapstructure:"exclude" yaml:"exclude,omitempty"`
	Protocol string `mapstructure:"protocol" yaml:"protocol,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// MQTTConfig configures the optional event bridge.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Host        string `mapstructure:"host" yaml:"host,omitempty"`
	Port        int    `mapstructure:"port" yaml:"port"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	Username    string `mapstructure:"username" yaml:"username,omitempty"`
	Password    string `mapstructure:"password" yaml:"password,omitempty"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix,omitempty"`
	QoS         int    `mapstructure:"qos" yaml:"qos"`
	TLS         bool   `mapstructure:"tls" yaml:"tls"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: currentVersion,
		WebSocket: WebSocketConfig{
			RequestTimeout: int(rpc.DefaultRequestTimeout / time.Second),
			ReconnectMin:   int(rpc.DefaultReconnectMin / time.Second),
			ReconnectMax:   int(rpc.DefaultReconnectMax / time.Second),
			PingInterval:   int(rpc.DefaultPingInterval / time.Second),
		},
		Server: ServerConfig{
			Port: 8765,
			Path: server.DefaultPath,
		},
		Discovery: DiscoveryConfig{
			Mdns:        true,
			MdnsTimeout: 5,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			TopicPrefix: mqtt.DefaultTopicPrefix,
		},
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Version != currentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, currentVersion)
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: %w", i, device.ErrMissingID)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate entry for %s", i, d.ID)
		}
		seen[d.ID] = true
		if _, err := options.ParseProtocol(d.Protocol); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
	}

	for i, s := range c.Discovery.Static {
		if s.ID == "" {
			return fmt.Errorf("discovery.static[%d]: %w", i, device.ErrMissingID)
		}
	}

	if c.Server.Enabled {
		if c.Server.Port < 0 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port out of range: %d", c.Server.Port)
		}
		if (c.Server.Cert == "") != (c.Server.Key == "") {
			return fmt.Errorf("server: cert and key must be set together")
		}
		if (c.Server.CertPEM == "") != (c.Server.KeyPEM == "") {
			return fmt.Errorf("server: cert_pem and key_pem must be set together")
		}
		if c.Server.Cert != "" && c.Server.CertPEM != "" {
			return fmt.Errorf("server: use either cert/key or cert_pem/key_pem")
		}
	}

	if c.MQTT.Enabled {
		if err := c.MQTTOptions().Validate(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	return nil
}

// OptionsTable converts the devices section to a per-device options table.
// Call Validate first; entries with an invalid protocol are skipped.
func (c *Config) OptionsTable() options.Table {
	if len(c.Devices) == 0 {
		return nil
	}

	table := make(options.Table, len(c.Devices))
	for _, d := range c.Devices {
		var p options.Partial
		if d.Exclude != nil {
			p.Exclude = options.Bool(*d.Exclude)
		}
		if d.Protocol != "" {
			protocol, err := options.ParseProtocol(d.Protocol)
			if err != nil {
				continue
			}
			p.Protocol = options.ProtocolPtr(protocol)
		}
		if d.Password != "" {
			p.Password = options.String(d.Password)
		}
		table[d.ID] = p
	}
	return table
}

// StaticIdentifiers returns the statically configured devices.
func (c *Config) StaticIdentifiers() []device.Identifiers {
	ids := make([]device.Identifiers, 0, len(c.Discovery.Static))
	for _, s := range c.Discovery.Static {
		ids = append(ids, device.Identifiers{
			DeviceID: device.DeviceID(s.ID),
			Model:    s.Model,
			Address:  s.Address,
		})
	}
	return ids
}

// WebSocketOptions converts the websocket section.
func (c *Config) WebSocketOptions() rpc.WebSocketOptions {
	return rpc.WebSocketOptions{
		ClientID:       c.WebSocket.ClientID,
		RequestTimeout: seconds(c.WebSocket.RequestTimeout),
		PingInterval:   seconds(c.WebSocket.PingInterval),
		ReconnectMin:   seconds(c.WebSocket.ReconnectMin),
		ReconnectMax:   seconds(c.WebSocket.ReconnectMax),
	}
}

// ServerOptions converts the server section.
func (c *Config) ServerOptions() *server.Config {
	return &server.Config{
		Host:     c.Server.Host,
		Port:     c.Server.Port,
		Path:     c.Server.Path,
		CertPath: c.Server.Cert,
		KeyPath:  c.Server.Key,
		CertPEM:  pemBytes(c.Server.CertPEM),
		KeyPEM:   pemBytes(c.Server.KeyPEM),
	}
}

// MQTTOptions converts the mqtt section.
func (c *Config) MQTTOptions() mqtt.Config {
	return mqtt.Config{
		Host:        c.MQTT.Host,
		Port:        c.MQTT.Port,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         c.MQTT.QoS,
		TLS:         c.MQTT.TLS,
	}
}

// MdnsTimeout returns the scan duration for one-shot discovery.
func (c *Config) MdnsTimeout() time.Duration {
	return seconds(c.Discovery.MdnsTimeout)
}

func pemBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
