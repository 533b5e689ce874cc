// Package config loads hlsfeed settings from defaults, a YAML file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/otofune/hlsfeed/feed"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGateway         = "http://localhost:1633"
	DefaultOwner           = "5BDAB2F5bC2C311D1E5860617eE0ECC238f4933E"
	DefaultTopic           = "4f8faa5a6c4176b5d08e4721617aeafdca927e6c79ffb33f1d67cebb5546136c"
	DefaultPathPrefix      = "/bytes/"
	DefaultRefreshInterval = 10 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultPoster          = "https://media4.giphy.com/media/v1.Y2lkPTc5MGI3NjExaG9vaHBnazE5dXY3eG1hbzd6bWt3dmhsNmRrcWd0YmtlajR4ZGg5ZiZlcD12MV9pbnRlcm5hbF9naWZfYnlfaWQmY3Q9Zw/MwHRlY9M6GT8T7a3vN/giphy.gif"
	DefaultListen          = ":8080"

	envPrefix = "HLSFEED_"
)

// Duration is a time.Duration that reads Go duration strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", n.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type Feed struct {
	Owner string `yaml:"owner"`
	Topic string `yaml:"topic"`
	// TopicName, when set, is hashed into Topic.
	TopicName string `yaml:"topic_name"`
	Type      string `yaml:"type"`
}

type Player struct {
	PathPrefix      string   `yaml:"path_prefix"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	Poster          string   `yaml:"poster"`
	// Variant is "best" or "all".
	Variant string `yaml:"variant"`
}

type Output struct {
	// Path is "-" for stdout, a directory to record into, or empty to only serve.
	Path        string `yaml:"path"`
	Parallelism int64  `yaml:"parallelism"`
	DebugDir    string `yaml:"debug_dir"`
}

type Server struct {
	Listen string `yaml:"listen"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Gateway string `yaml:"gateway"`
	Feed    Feed   `yaml:"feed"`
	Player  Player `yaml:"player"`
	Output  Output `yaml:"output"`
	Server  Server `yaml:"server"`
	Log     Log    `yaml:"log"`
}

// Default returns the configuration the stream client ships with.
func Default() *Config {
	return &Config{
		Gateway: DefaultGateway,
		Feed: Feed{
			Owner: DefaultOwner,
			Topic: DefaultTopic,
			Type:  feed.SequenceType,
		},
		Player: Player{
			PathPrefix:      DefaultPathPrefix,
			RefreshInterval: Duration(DefaultRefreshInterval),
			RequestTimeout:  Duration(DefaultRequestTimeout),
			Poster:          DefaultPoster,
			Variant:         "best",
		},
		Output: Output{
			Path:        "-",
			Parallelism: 8,
		},
		Server: Server{Listen: DefaultListen},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load applies the YAML file at path (if any) and the environment over the
// defaults, then validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	c.LoadFromEnvironment()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadFromEnvironment overrides fields from HLSFEED_* variables. Invalid
// durations are ignored and leave the previous value.
func (c *Config) LoadFromEnvironment() {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = Duration(d)
			}
		}
	}

	str("GATEWAY", &c.Gateway)
	str("FEED_OWNER", &c.Feed.Owner)
	str("FEED_TOPIC", &c.Feed.Topic)
	str("FEED_TOPIC_NAME", &c.Feed.TopicName)
	str("FEED_TYPE", &c.Feed.Type)
	str("PATH_PREFIX", &c.Player.PathPrefix)
	dur("REFRESH_INTERVAL", &c.Player.RefreshInterval)
	dur("REQUEST_TIMEOUT", &c.Player.RequestTimeout)
	str("POSTER", &c.Player.Poster)
	str("VARIANT", &c.Player.Variant)
	str("OUTPUT", &c.Output.Path)
	str("DEBUG_DIR", &c.Output.DebugDir)
	str("LISTEN", &c.Server.Listen)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: gateway must be an absolute URL, got %q", c.Gateway)
	}
	if _, err := c.Identity(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !strings.HasPrefix(c.Player.PathPrefix, "/") {
		return fmt.Errorf("config: path_prefix must start with /, got %q", c.Player.PathPrefix)
	}
	if c.Player.RefreshInterval <= 0 {
		return fmt.Errorf("config: refresh_interval must be positive")
	}
	if c.Player.RequestTimeout <= 0 {
		return fmt.Errorf("config: request_timeout must be positive")
	}
	switch c.Player.Variant {
	case "best", "all":
	default:
		return fmt.Errorf("config: variant must be best or all, got %q", c.Player.Variant)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// Identity is the feed to follow.
func (c *Config) Identity() (feed.Identity, error) {
	topic := c.Feed.Topic
	if c.Feed.TopicName != "" {
		topic = feed.TopicFromName(c.Feed.TopicName).Hex()
	}
	return feed.ParseIdentity(c.Feed.Owner, topic)
}

// GatewayURL is the parsed gateway; call after Validate.
func (c *Config) GatewayURL() *url.URL {
	u, _ := url.Parse(c.Gateway)
	return u
}
