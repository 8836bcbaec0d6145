package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/fftoml"
	"go.uber.org/multierr"
)

// EnvPrefix is prepended to flag names to form environment variables,
// e.g. MINESWEEPER_LOG_LEVEL for -log-level.
const EnvPrefix = "MINESWEEPER"

// Config holds the server settings.
type Config struct {
	Addr     string
	LogLevel string
	LogJSON  bool

	// Board used when a new game is created without explicit settings.
	Width  int
	Height int
	Mines  int

	MaxWidth  int
	MaxHeight int

	CORSOrigins     []string
	ShutdownTimeout time.Duration
	Heartbeat       time.Duration
}

// Load reads .env files, then parses args with environment and TOML config
// file fallbacks. Precedence: flags, environment, config file, defaults.
func Load(args []string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var (
		c       Config
		origins string
	)
	fset := flag.NewFlagSet("minesweeper", flag.ContinueOnError)
	fset.StringVar(&c.Addr, "addr", ":8080", "HTTP listen address")
	fset.StringVar(&c.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fset.BoolVar(&c.LogJSON, "log-json", false, "log as JSON")
	fset.IntVar(&c.Width, "width", 9, "default board width")
	fset.IntVar(&c.Height, "height", 9, "default board height")
	fset.IntVar(&c.Mines, "mines", 10, "default mine count")
	fset.IntVar(&c.MaxWidth, "max-width", 64, "largest board width accepted")
	fset.IntVar(&c.MaxHeight, "max-height", 64, "largest board height accepted")
	fset.StringVar(&origins, "cors-origins", "", "comma separated origins allowed to call the API")
	fset.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown deadline")
	fset.DurationVar(&c.Heartbeat, "heartbeat", 15*time.Second, "event stream keep-alive interval")
	_ = fset.String("config", "", "TOML config file")

	err := ff.Parse(fset, args,
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(fftoml.Parser),
	)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.CORSOrigins = splitList(origins)
	return c, c.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr must not be empty"))
	}
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		err = multierr.Append(err, fmt.Errorf("max size %dx%d must be positive", c.MaxWidth, c.MaxHeight))
	}
	if c.Width <= 0 || c.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("default size %dx%d must be positive", c.Width, c.Height))
	} else if c.Width > c.MaxWidth || c.Height > c.MaxHeight {
		err = multierr.Append(err, fmt.Errorf("default size %dx%d exceeds max %dx%d", c.Width, c.Height, c.MaxWidth, c.MaxHeight))
	} else if c.Mines < 0 || c.Mines > c.Width*c.Height-1 {
		err = multierr.Append(err, fmt.Errorf("default mines %d out of range 0..%d", c.Mines, c.Width*c.Height-1))
	}
	if c.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("shutdown-timeout must be positive"))
	}
	if c.Heartbeat <= 0 {
		err = multierr.Append(err, errors.New("heartbeat must be positive"))
	}
	return err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
