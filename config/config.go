package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/natswire/client"
	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/pkg/retry"
	"github.com/c360/natswire/pkg/tlsutil"
)

// EnvPrefix is the prefix of the environment variables that override file
// settings.
const EnvPrefix = "NATSWIRE"

// AuthConfig selects one credential mode. When several are set the most
// specific wins, matching the client's own precedence: credentials file,
// then nkey seed, then token, then username/password.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`

	// NKeySeedFile points at a file holding a bare nkey seed.
	NKeySeedFile string `yaml:"nkey_seed_file"`

	// CredentialsFile points at a decorated credentials file holding a
	// user JWT and seed.
	CredentialsFile string `yaml:"credentials_file"`
}

// ReconnectConfig shapes the backoff between reconnect passes.
type ReconnectConfig struct {
	// MaxReconnects bounds consecutive failed passes over the server
	// pool. -1 means retry forever; the zero value means the client
	// default.
	MaxReconnects int `yaml:"max_reconnects"`

	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	NoJitter     bool          `yaml:"no_jitter"`
}

// TLSConfig wraps the TLS material settings with an enable switch. TLS is
// also negotiated when the broker requires it, regardless of Enabled.
type TLSConfig struct {
	tlsutil.Config `yaml:",inline"`

	Enabled bool `yaml:"enabled"`
}

// Config is the YAML client configuration. Every field maps onto a client
// option; zero values mean client defaults.
type Config struct {
	Servers []string `yaml:"servers"`
	Name    string   `yaml:"name"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxPingsOut    int           `yaml:"max_pings_out"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	PendingLimit   int           `yaml:"pending_limit"`

	Verbose bool `yaml:"verbose"`
	NoEcho  bool `yaml:"no_echo"`

	Auth      AuthConfig      `yaml:"auth"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	TLS       TLSConfig       `yaml:"tls"`
}

// Load reads a YAML config file, applies NATSWIRE_* environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode yaml config")
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a config from environment variables alone.
func FromEnv() (*Config, error) {
	var cfg Config
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "_SERVERS"); v != "" {
		c.Servers = splitServers(v)
	}
	if v := os.Getenv(EnvPrefix + "_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv(EnvPrefix + "_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := os.Getenv(EnvPrefix + "_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
	if v := os.Getenv(EnvPrefix + "_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv(EnvPrefix + "_CREDENTIALS_FILE"); v != "" {
		c.Auth.CredentialsFile = v
	}
	if v := os.Getenv(EnvPrefix + "_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConnectTimeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "_MAX_RECONNECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reconnect.MaxReconnects = n
		}
	}
	if v := os.Getenv(EnvPrefix + "_TLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TLS.Enabled = b
		}
	}
}

func splitServers(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configs the client would refuse at connect time, so
// mistakes surface at load rather than first use.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: at least one server url", errors.ErrMissingConfig),
			"config", "Validate", "validate client config")
	}
	if c.ConnectTimeout < 0 || c.PingInterval < 0 || c.DrainTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: timeouts cannot be negative", errors.ErrInvalidConfig),
			"config", "Validate", "validate client config")
	}
	if c.PendingLimit < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: pending limit cannot be negative", errors.ErrInvalidConfig),
			"config", "Validate", "validate client config")
	}
	if c.Reconnect.MaxReconnects < -1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max reconnects below -1", errors.ErrInvalidConfig),
			"config", "Validate", "validate client config")
	}
	if c.Auth.Password != "" && c.Auth.Username == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: password without username", errors.ErrInvalidConfig),
			"config", "Validate", "validate client config")
	}
	return nil
}

// Options converts the config into client options. File-backed settings
// (nkey seed, TLS material) are loaded here, so a bad path fails fast.
func (c *Config) Options() ([]client.Option, error) {
	var opts []client.Option

	if len(c.Servers) > 1 {
		opts = append(opts, client.WithServers(c.Servers[1:]...))
	}
	if c.Name != "" {
		opts = append(opts, client.WithName(c.Name))
	}
	if c.ConnectTimeout > 0 {
		opts = append(opts, client.WithTimeout(c.ConnectTimeout))
	}
	if c.PingInterval > 0 {
		opts = append(opts, client.WithPingInterval(c.PingInterval))
	}
	if c.MaxPingsOut > 0 {
		opts = append(opts, client.WithMaxPingsOut(c.MaxPingsOut))
	}
	if c.DrainTimeout > 0 {
		opts = append(opts, client.WithDrainTimeout(c.DrainTimeout))
	}
	if c.PendingLimit > 0 {
		opts = append(opts, client.WithPendingLimit(c.PendingLimit))
	}
	if c.Verbose {
		opts = append(opts, client.WithVerbose())
	}
	if c.NoEcho {
		opts = append(opts, client.WithNoEcho())
	}

	if o, err := c.authOption(); err != nil {
		return nil, err
	} else if o != nil {
		opts = append(opts, o)
	}

	if r := c.Reconnect; r != (ReconnectConfig{}) {
		if r.MaxReconnects != 0 {
			opts = append(opts, client.WithMaxReconnects(r.MaxReconnects))
		}
		if r.InitialDelay > 0 || r.MaxDelay > 0 || r.Multiplier > 0 {
			policy := retry.Reconnect()
			if r.InitialDelay > 0 {
				policy.InitialDelay = r.InitialDelay
			}
			if r.MaxDelay > 0 {
				policy.MaxDelay = r.MaxDelay
			}
			if r.Multiplier > 0 {
				policy.Multiplier = r.Multiplier
			}
			policy.AddJitter = !r.NoJitter
			opts = append(opts, client.WithReconnectPolicy(policy))
		}
	}

	if c.TLS.Enabled {
		tlsConf, err := tlsutil.Load(c.TLS.Config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithTLS(tlsConf))
	}

	return opts, nil
}

// authOption picks the credential option matching the client precedence.
func (c *Config) authOption() (client.Option, error) {
	a := c.Auth
	switch {
	case a.CredentialsFile != "":
		return client.WithCredentials(a.CredentialsFile), nil
	case a.NKeySeedFile != "":
		seed, err := os.ReadFile(a.NKeySeedFile)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "authOption", "read nkey seed file")
		}
		return client.WithNKey([]byte(strings.TrimSpace(string(seed)))), nil
	case a.Token != "":
		return client.WithToken(a.Token), nil
	case a.Username != "":
		return client.WithUserPassword(a.Username, a.Password), nil
	}
	return nil, nil
}

// Connect loads options from the config and dials the first server; the
// rest are handed to the pool.
func (c *Config) Connect() (*client.Client, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return client.Connect(c.Servers[0], opts...)
}
