package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2

	defaultPort    = 1883
	defaultTLSPort = 8883

	// DefaultTopicPrefix is the root of all published topics.
	DefaultTopicPrefix = "shellies"
)

// Config describes the broker connection.
type Config struct {
	Host        string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
	TLS         bool
}

// Validate checks the configuration before connecting.
func (c Config) Validate() error {
	if c.QoS < 0 || c.QoS > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, c.QoS)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: no broker host", ErrConnectionFailed)
	}
	return nil
}

func (c Config) prefix() string {
	if c.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return c.TopicPrefix
}

// buildClientOptions creates paho MQTT options from the configuration.
func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme, port := "tcp", defaultPort
	if cfg.TLS {
		scheme, port = "ssl", defaultTLSPort
	}
	if cfg.Port != 0 {
		port = cfg.Port
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// The broker marks the bridge offline if we vanish without Close.
	opts.SetWill(Topics{Prefix: cfg.prefix()}.Status(), statusOffline, byte(cfg.QoS), true)

	return opts
}
