// Package config resolves settings from DECEIVE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	flag "github.com/spf13/pflag"

	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/policy"
)

const ENV_PREFIX = "DECEIVE"

// Flags override the environment, which overrides the defaults.
type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:0"`
	ChatHost    string `envconfig:"CHAT_HOST"`
	ChatPort    int    `envconfig:"CHAT_PORT" default:"5223"`
	ControlAddr string `envconfig:"CONTROL_ADDR" default:"127.0.0.1:4337"`
	// Skips the control API entirely
	NoControl  bool   `envconfig:"NO_CONTROL"`
	ApiKeyFile string `envconfig:"API_KEY_FILE"`

	// Holds the status file and debug.log. Defaults to <user config dir>/Deceive
	DataDir string `envconfig:"DATA_DIR"`

	CertFile        string `envconfig:"CERT_FILE"`
	KeyFile         string `envconfig:"KEY_FILE"`
	P12File         string `envconfig:"P12_FILE"`
	P12PasswordFile string `envconfig:"P12_PASSWORD_FILE"`

	// Overrides the saved status for this run
	Status    string `envconfig:"STATUS"`
	Disabled  bool   `envconfig:"DISABLED"`
	LobbyChat bool   `envconfig:"LOBBY_CHAT" default:"true"`

	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`

	TraceLog  bool `envconfig:"TRACE_LOG"`
	Metrics   bool `envconfig:"METRICS" default:"true"`
	Profiling bool `envconfig:"PROFILING"`
	Debug     bool `envconfig:"DEBUG"`
}

// Reads the environment, then parses args (without the program name) on top of it.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ENV_PREFIX, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	fs := flag.NewFlagSet("deceive-proxy", flag.ContinueOnError)
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "address the game client connects to")
	fs.StringVar(&cfg.ChatHost, "chat-host", cfg.ChatHost, "host name of the real chat server")
	fs.IntVar(&cfg.ChatPort, "chat-port", cfg.ChatPort, "port of the real chat server")
	fs.StringVar(&cfg.ControlAddr, "control", cfg.ControlAddr, "loopback address of the control API")
	fs.BoolVar(&cfg.NoControl, "no-control", cfg.NoControl, "do not start the control API")
	fs.StringVarP(&cfg.ApiKeyFile, "api-key", "a", cfg.ApiKeyFile, "file containing the API key the control API requires (x-api-key header)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the status file and debug.log")
	fs.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "certificate PEM file, must be used with --key")
	fs.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "key PEM file, must be used with --cert")
	fs.StringVar(&cfg.P12File, "p12", cfg.P12File, ".p12 certificate file, must be used with --p12-pass")
	fs.StringVar(&cfg.P12PasswordFile, "p12-pass", cfg.P12PasswordFile, "file containing the .p12 certificate password, must be used with --p12")
	fs.StringVarP(&cfg.Status, "status", "s", cfg.Status, "start with this status (online, offline, mobile) instead of the saved one")
	fs.BoolVar(&cfg.Disabled, "disabled", cfg.Disabled, "start with presence masking turned off")
	fs.BoolVar(&cfg.LobbyChat, "lobby-chat", cfg.LobbyChat, "let lobby presences through")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "exit after having no sessions for this long")
	fs.BoolVar(&cfg.TraceLog, "trace", cfg.TraceLog, "log all traffic to xmpp-trace.log.gz in the data directory")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "serve Prometheus metrics on the control API")
	fs.BoolVar(&cfg.Profiling, "pprof", cfg.Profiling, "serve pprof on the control API")
	fs.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "log method timings")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ChatHost) == "" {
		errs = append(errs, errors.New("chat host is required (--chat-host or DECEIVE_CHAT_HOST)"))
	}
	if c.ChatPort <= 0 || c.ChatPort > 0xFFFF {
		errs = append(errs, fmt.Errorf("invalid chat port %d", c.ChatPort))
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err))
	}
	if !c.NoControl {
		if _, _, err := net.SplitHostPort(c.ControlAddr); err != nil {
			errs = append(errs, fmt.Errorf("invalid control address %q: %w", c.ControlAddr, err))
		}
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		errs = append(errs, errors.New("--cert and --key must be used together"))
	}
	if (c.P12File == "") != (c.P12PasswordFile == "") {
		errs = append(errs, errors.New("--p12 and --p12-pass must be used together"))
	}
	if c.Status != "" {
		if _, err := policy.ParseStatus(c.Status); err != nil {
			errs = append(errs, err)
		}
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("idle timeout must be positive, got %s", c.IdleTimeout))
	}
	return errors.Join(errs...)
}

func (c *Config) StatusFile() string {
	return filepath.Join(c.DataDir, constants.STATUS_FILE_NAME)
}

func (c *Config) DebugLogFile() string {
	return filepath.Join(c.DataDir, constants.DEBUG_LOG_FILE_NAME)
}

func (c *Config) TraceLogFile() string {
	return filepath.Join(c.DataDir, "xmpp-trace.log.gz")
}

// Policy to start with. The status comes from --status, else the status file.
func (c *Config) InitialPolicy() policy.Policy {
	status := policy.LoadStatus(c.StatusFile())
	if c.Status != "" {
		// Checked by Validate
		status, _ = policy.ParseStatus(c.Status)
	}
	return policy.Policy{
		Enabled:   !c.Disabled,
		Status:    status,
		LobbyChat: c.LobbyChat,
	}
}

func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return constants.DATA_DIR_NAME
	}
	return filepath.Join(dir, constants.DATA_DIR_NAME)
}

// Reads and checks the control API key. An empty path means no key.
func ReadApiKeyFile(apiKeyFile string) (string, error) {
	if apiKeyFile == "" {
		return "", nil
	}
	stat, err := os.Stat(apiKeyFile)
	if err != nil {
		return "", err
	}
	fileSize := stat.Size()
	if fileSize > 1024 {
		return "", fmt.Errorf(
			"API key file %s is too large (%d > %d)", apiKeyFile, fileSize, 1024)
	}

	apiKeyBytes, err := os.ReadFile(apiKeyFile)
	if err != nil {
		return "", err
	}
	apiKey := strings.Trim(string(apiKeyBytes), " \r\n")
	if !constants.API_KEY_REGEX.MatchString(apiKey) {
		return "", fmt.Errorf(
			"API key at %s doesn't match regex `%s`", apiKeyFile, constants.API_KEY_REGEX.String())
	}
	return apiKey, nil
}
