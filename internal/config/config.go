package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTitle            = "mqtt - dlna bridge"
	defaultDiscoveryTimeout = 5 * time.Second
	defaultSettleDelay      = time.Second
	defaultWindowDays       = 7
	defaultMaxRecent        = 100
	defaultWebListen        = ":8081"
)

// Duration accepts time.ParseDuration strings in YAML, e.g. "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Title       string      `yaml:"title"`
	LogLevel    string      `yaml:"log_level"`
	MQTT        MQTT        `yaml:"mqtt"`
	MediaServer MediaServer `yaml:"media_server"`
	Renderers   []Renderer  `yaml:"renderers"`
	Discovery   Discovery   `yaml:"discovery"`
	Playback    Playback    `yaml:"playback"`
	WhatsNew    WhatsNew    `yaml:"whats_new"`
	Activity    Activity    `yaml:"activity"`
	Web         Web         `yaml:"web"`
}

type MQTT struct {
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
	TLS       TLS    `yaml:"tls"`
}

type TLS struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

type MediaServer struct {
	// Name must equal the server's advertised friendlyName exactly.
	Name string `yaml:"name"`
	// SearchRoot is the ContentDirectory container id to browse, e.g. "0/Videos".
	SearchRoot string `yaml:"search_root"`
}

type Renderer struct {
	ID string `yaml:"id"`
	// Name is matched as a friendlyName prefix during discovery.
	Name string `yaml:"name"`
	// UDN optionally pins the renderer to an exact device id.
	UDN string `yaml:"udn"`
	// ControlURL optionally seeds the AVTransport endpoint, skipping
	// discovery until the endpoint fails.
	ControlURL string `yaml:"control_url"`
}

type Discovery struct {
	Timeout Duration `yaml:"timeout"`
}

type Playback struct {
	// SettleDelay is the pause between stopping the current track and
	// loading the next one. Some renderers reject a load that arrives
	// too soon after a stop.
	SettleDelay Duration `yaml:"settle_delay"`
}

type WhatsNew struct {
	WindowDays     int      `yaml:"window_days"`
	ExcludedSeries []string `yaml:"excluded_series"`
}

type Activity struct {
	MaxRecent int `yaml:"max_recent"`
}

type Web struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Title:     defaultTitle,
		LogLevel:  "info",
		Discovery: Discovery{Timeout: Duration(defaultDiscoveryTimeout)},
		Playback:  Playback{SettleDelay: Duration(defaultSettleDelay)},
		WhatsNew:  WhatsNew{WindowDays: defaultWindowDays},
		Activity:  Activity{MaxRecent: defaultMaxRecent},
		Web:       Web{Listen: defaultWebListen},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.MQTT.BrokerURL) == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}
	if strings.TrimSpace(c.MQTT.Topic) == "" {
		return fmt.Errorf("mqtt.topic is required")
	}
	if strings.TrimSpace(c.MediaServer.Name) == "" {
		return fmt.Errorf("media_server.name is required")
	}
	if len(c.Renderers) == 0 {
		return fmt.Errorf("at least one renderer is required")
	}
	seen := make(map[string]bool, len(c.Renderers))
	for i, r := range c.Renderers {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("renderers[%d].id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("renderers[%d].id %q is duplicated", i, r.ID)
		}
		seen[r.ID] = true
		if strings.TrimSpace(r.Name) == "" && strings.TrimSpace(r.ControlURL) == "" {
			return fmt.Errorf("renderers[%d] needs a name or a control_url", i)
		}
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive")
	}
	if c.Playback.SettleDelay < 0 {
		return fmt.Errorf("playback.settle_delay must not be negative")
	}
	if c.WhatsNew.WindowDays < 1 {
		return fmt.Errorf("whats_new.window_days must be at least 1")
	}
	if c.Activity.MaxRecent < 1 {
		return fmt.Errorf("activity.max_recent must be at least 1")
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "mqttdlnaplay"
	}
	return nil
}

// ResponseTopic is where command outcomes are published.
func (c *Config) ResponseTopic() string {
	return c.MQTT.Topic + "/response"
}

// UsesTLS reports whether the broker URL scheme asks for a TLS session.
func (m MQTT) UsesTLS() bool {
	for _, scheme := range []string{"ssl://", "tls://", "mqtts://"} {
		if strings.HasPrefix(m.BrokerURL, scheme) {
			return true
		}
	}
	return false
}
