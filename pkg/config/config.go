// Copyright (c) 2017 OysterPack, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the anycastd config file. Every setting can be overridden by an ANYCAST_ prefixed environment
// variable, e.g., ANYCAST_NATS_URL overrides nats.url.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "anycast"

type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type NodeConfig struct {
	// ID is the node id that remote nodes address this node by. If blank, then a random id is generated on startup.
	ID string `mapstructure:"id"`
	// StorePath is the bolt database file. If blank, then messages are kept in memory.
	StorePath string `mapstructure:"store_path"`
	LogLevel  string `mapstructure:"log_level"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	// SubscriberBufSize is the number of received envelopes that are buffered before NATS starts dropping them
	SubscriberBufSize int `mapstructure:"subscriber_buf_size"`
	// Embedded runs a NATS server in process. nats.url is then ignored.
	Embedded EmbeddedNATSConfig `mapstructure:"embedded"`
}

type EmbeddedNATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type ProtocolConfig struct {
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	EagerRepeatInterval  time.Duration `mapstructure:"eager_repeat_interval"`
	SlowedRepeatInterval time.Duration `mapstructure:"slowed_repeat_interval"`
	SendAttempts         int           `mapstructure:"send_attempts"`
	SendBackoff          time.Duration `mapstructure:"send_backoff"`
	// DefaultTimeout applies to requests that do not specify a timeout. A negative value means wait forever.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	BrowseTimeout  time.Duration `mapstructure:"browse_timeout"`
}

// Settings converts the protocol config to the anycast settings
func (a ProtocolConfig) Settings() anycast.Settings {
	return anycast.Settings{
		EagerRepeatInterval:  a.EagerRepeatInterval,
		SlowedRepeatInterval: a.SlowedRepeatInterval,
		SendAttempts:         a.SendAttempts,
		SendBackoff:          a.SendBackoff,
		BrowseTimeout:        a.BrowseTimeout,
	}
}

type MetricsConfig struct {
	// Addr is the HTTP listen address for the prometheus metrics endpoint. If blank, then metrics are not exposed.
	Addr string `mapstructure:"addr"`
}

// Load reads the config file. If path is blank, then the config is loaded from defaults and the environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the default config
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		// the defaults are valid
		panic(err)
	}
	return cfg
}

// every key must have a default, otherwise AutomaticEnv does not apply to it when unmarshalling
func setDefaults(v *viper.Viper) {
	settings := anycast.DefaultSettings()
	v.SetDefault("node.id", "")
	v.SetDefault("node.store_path", "")
	v.SetDefault("node.log_level", "INFO")

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.subscriber_buf_size", 1024)
	v.SetDefault("nats.embedded.enabled", false)
	v.SetDefault("nats.embedded.host", "127.0.0.1")
	v.SetDefault("nats.embedded.port", 4222)

	v.SetDefault("protocol.sweep_interval", 100*time.Millisecond)
	v.SetDefault("protocol.eager_repeat_interval", settings.EagerRepeatInterval)
	v.SetDefault("protocol.slowed_repeat_interval", settings.SlowedRepeatInterval)
	v.SetDefault("protocol.send_attempts", settings.SendAttempts)
	v.SetDefault("protocol.send_backoff", settings.SendBackoff)
	v.SetDefault("protocol.default_timeout", 30*time.Second)
	v.SetDefault("protocol.browse_timeout", settings.BrowseTimeout)

	v.SetDefault("metrics.addr", "")
}

func (c Config) Validate() error {
	var errs []string
	if strings.ContainsAny(c.Node.ID, ". *>\t") {
		errs = append(errs, "node.id must be a single NATS subject token")
	}
	if !c.NATS.Embedded.Enabled && strings.TrimSpace(c.NATS.URL) == "" {
		errs = append(errs, "nats.url is required unless nats.embedded.enabled=true")
	}
	if c.NATS.Embedded.Enabled && c.NATS.Embedded.Port < -1 {
		errs = append(errs, "nats.embedded.port must not be less than -1")
	}
	p := c.Protocol
	if p.SweepInterval <= 0 {
		errs = append(errs, "protocol.sweep_interval must be positive")
	}
	if p.EagerRepeatInterval <= 0 || p.SlowedRepeatInterval <= 0 {
		errs = append(errs, "protocol repeat intervals must be positive")
	}
	if p.SlowedRepeatInterval < p.EagerRepeatInterval {
		errs = append(errs, "protocol.slowed_repeat_interval must not be less than protocol.eager_repeat_interval")
	}
	if p.SendAttempts < 1 {
		errs = append(errs, "protocol.send_attempts must be at least 1")
	}
	if p.SendBackoff < 0 {
		errs = append(errs, "protocol.send_backoff must not be negative")
	}
	if p.BrowseTimeout <= 0 {
		errs = append(errs, "protocol.browse_timeout must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
