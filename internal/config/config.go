// Package config holds the CLI and relay configuration. Values come from an
// optional .env file, then RTCHAT_* environment variables, then flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/1ureka/rtchat/internal/negotiation"
	"github.com/1ureka/rtchat/internal/transport"
)

// Mode selects how signaling messages travel between the two peers.
type Mode string

const (
	ModeConsole Mode = "console" // copy-paste through the terminal
	ModeHost    Mode = "host"    // expose a PIN-gated WebSocket endpoint
	ModeJoin    Mode = "join"    // dial the other peer's host endpoint
	ModeRelay   Mode = "relay"   // meet in a room on a relay server
)

// Modes lists every mode in prompt order.
var Modes = []Mode{ModeConsole, ModeHost, ModeJoin, ModeRelay}

// Config stores every parameter of one rtchat session.
type Config struct {
	Mode   Mode   `env:"RTCHAT_MODE"`
	Role   string `env:"RTCHAT_ROLE"`   // initiator, responder, or empty for the mode default
	Policy string `env:"RTCHAT_POLICY"` // trickle, bundle, or empty for the mode default

	ListenAddr string `env:"RTCHAT_LISTEN_ADDR" env-default:":0"` // Host: WebSocket listen address
	PIN        string `env:"RTCHAT_PIN"`                          // Host: generated when empty; Join: the host's PIN
	URL        string `env:"RTCHAT_URL"`                          // Join: peer endpoint; Relay: relay base URL
	Room       string `env:"RTCHAT_ROOM"`                         // Relay: existing room to join

	STUNServers   []string      `env:"RTCHAT_STUN_SERVERS" env-separator:","`
	Loopback      bool          `env:"RTCHAT_LOOPBACK"`
	Label         string        `env:"RTCHAT_LABEL" env-default:"chat"`
	StatsInterval time.Duration `env:"RTCHAT_STATS_INTERVAL" env-default:"0s"`
	Debug         bool          `env:"RTCHAT_DEBUG"`
}

// Load reads the optional .env file, the environment, then args. It does not
// validate: interactive prompts may still fill in the mode.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	fs := cfg.FlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FlagSet binds flags to cfg, using its current values as defaults.
func (c *Config) FlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rtchat", pflag.ContinueOnError)
	fs.StringVarP((*string)(&c.Mode), "mode", "m", string(c.Mode), "signaling mode: console, host, join or relay")
	fs.StringVarP(&c.Role, "role", "r", c.Role, "initiator or responder (default depends on mode)")
	fs.StringVar(&c.Policy, "policy", c.Policy, "ICE candidate policy: trickle or bundle (default depends on mode)")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "host mode listen address")
	fs.StringVar(&c.PIN, "pin", c.PIN, "host: PIN to require (random when empty); join: the host's PIN")
	fs.StringVarP(&c.URL, "url", "u", c.URL, "join: peer WebSocket URL; relay: relay server URL")
	fs.StringVar(&c.Room, "room", c.Room, "relay mode room to join (a new room is created when empty)")
	fs.StringSliceVar(&c.STUNServers, "stun", c.STUNServers, "STUN server URLs")
	fs.BoolVar(&c.Loopback, "loopback", c.Loopback, "gather loopback ICE candidates")
	fs.StringVar(&c.Label, "label", c.Label, "data channel label")
	fs.DurationVar(&c.StatsInterval, "stats", c.StatsInterval, "log traffic statistics at this interval (0 disables)")
	fs.BoolVarP(&c.Debug, "debug", "d", c.Debug, "enable debug logging")
	return fs
}

// Validate checks the mode and the fields it needs.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeConsole, ModeHost:
	case ModeJoin:
		if c.URL == "" {
			errs = append(errs, errors.New("join mode needs --url"))
		}
		if c.PIN == "" {
			errs = append(errs, errors.New("join mode needs --pin"))
		}
	case ModeRelay:
		if c.URL == "" {
			errs = append(errs, errors.New("relay mode needs --url"))
		}
	case "":
		errs = append(errs, errors.New("no mode selected"))
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}

	if _, err := c.NegotiationRole(); err != nil {
		errs = append(errs, err)
	}
	if _, err := negotiation.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	for _, s := range c.STUNServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "stuns:") {
			errs = append(errs, fmt.Errorf("not a STUN URL: %q", s))
		}
	}
	if c.Label == "" {
		errs = append(errs, errors.New("data channel label is empty"))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("negative stats interval %s", c.StatsInterval))
	}

	return errors.Join(errs...)
}

// NegotiationRole resolves the role for this session. RoleNone means the user
// decides at runtime (console mode: type /start, or paste an offer).
func (c *Config) NegotiationRole() (negotiation.Role, error) {
	switch c.Role {
	case "initiator":
		return negotiation.RoleInitiator, nil
	case "responder":
		return negotiation.RoleResponder, nil
	case "":
	default:
		return negotiation.RoleNone, fmt.Errorf("unknown role %q (want initiator or responder)", c.Role)
	}

	switch c.Mode {
	case ModeHost:
		return negotiation.RoleResponder, nil
	case ModeJoin:
		return negotiation.RoleInitiator, nil
	case ModeRelay:
		if c.Room == "" {
			return negotiation.RoleInitiator, nil
		}
		return negotiation.RoleResponder, nil
	default:
		return negotiation.RoleNone, nil
	}
}

// CandidatePolicy resolves the candidate policy. Console mode bundles by
// default so each side pastes exactly one line.
func (c *Config) CandidatePolicy() negotiation.Policy {
	if c.Policy == "" && c.Mode == ModeConsole {
		return negotiation.PolicyBundle
	}
	p, _ := negotiation.ParsePolicy(c.Policy)
	return p
}

// TransportOptions returns the peer connection settings.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		STUNServers:     c.STUNServers,
		IncludeLoopback: c.Loopback,
	}
}

// RelayConfig configures the rtchat-relay server.
type RelayConfig struct {
	Addr         string   `env:"RTCHAT_RELAY_ADDR" env-default:":8090"`
	QueueSize    int           `env:"RTCHAT_RELAY_QUEUE" env-default:"32"`
	MaxRooms     int           `env:"RTCHAT_RELAY_MAX_ROOMS" env-default:"1024"`
	RoomTTL      time.Duration `env:"RTCHAT_RELAY_ROOM_TTL" env-default:"10m"`
	AllowOrigins []string      `env:"RTCHAT_RELAY_ORIGINS" env-separator:"," env-default:"*"`
	Debug        bool          `env:"RTCHAT_DEBUG"`
}

// LoadRelay reads the relay configuration from .env, the environment, then args.
func LoadRelay(args []string) (*RelayConfig, error) {
	_ = godotenv.Load()

	var cfg RelayConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	fs := pflag.NewFlagSet("rtchat-relay", pflag.ContinueOnError)
	fs.StringVarP(&cfg.Addr, "addr", "a", cfg.Addr, "listen address")
	fs.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "messages held for a peer that has not joined yet")
	fs.IntVar(&cfg.MaxRooms, "max-rooms", cfg.MaxRooms, "rooms open at once")
	fs.DurationVar(&cfg.RoomTTL, "room-ttl", cfg.RoomTTL, "lifetime of a room nobody joined")
	fs.StringSliceVar(&cfg.AllowOrigins, "origins", cfg.AllowOrigins, "allowed CORS origins")
	fs.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("relay queue size must be positive, got %d", cfg.QueueSize)
	}
	if cfg.MaxRooms <= 0 {
		return nil, fmt.Errorf("relay room limit must be positive, got %d", cfg.MaxRooms)
	}
	if cfg.RoomTTL <= 0 {
		return nil, fmt.Errorf("relay room ttl must be positive, got %s", cfg.RoomTTL)
	}
	return &cfg, nil
}
