package path_nav

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. PATHNAV_LINK_KIND.
const EnvPrefix = "PATHNAV"

// LinkKind selects the robot link transport.
type LinkKind string

const (
	LinkHTTP   LinkKind = "http"
	LinkUDP    LinkKind = "udp"
	LinkSerial LinkKind = "serial"
	LinkSim    LinkKind = "sim"
)

// ParseLinkKind converts a link name into a LinkKind.
func ParseLinkKind(value string) (LinkKind, error) {
	switch kind := LinkKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case LinkHTTP, LinkUDP, LinkSerial, LinkSim:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown link kind %q", value)
	}
}

// PathConfig locates the path file.
type PathConfig struct {
	File string `mapstructure:"file"`
	Dir  string `mapstructure:"dir"`
}

// LoopConfig controls retries, timeouts and stall detection.
type LoopConfig struct {
	PoseTimeout      time.Duration `mapstructure:"pose_timeout"`
	DriveTimeout     time.Duration `mapstructure:"drive_timeout"`
	HaltTimeout      time.Duration `mapstructure:"halt_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	StallCycles      int           `mapstructure:"stall_cycles"`
	FailOnStall      bool          `mapstructure:"fail_on_stall"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// HTTPLinkConfig points at a Lokarria-compatible endpoint.
type HTTPLinkConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// UDPLinkConfig controls the datagram pose feed and command output.
type UDPLinkConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	CommandAddr string `mapstructure:"command_addr"`
	ReadBuffer  int    `mapstructure:"read_buffer"`
}

// SerialLinkConfig controls the serial port transport.
type SerialLinkConfig struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// LinkConfig selects and configures the robot link.
type LinkConfig struct {
	Kind   LinkKind         `mapstructure:"kind"`
	HTTP   HTTPLinkConfig   `mapstructure:"http"`
	UDP    UDPLinkConfig    `mapstructure:"udp"`
	Serial SerialLinkConfig `mapstructure:"serial"`
}

// LoggerConfig controls console and file logging.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// AppConfig aggregates all configuration sections.
type AppConfig struct {
	Hz         float64          `mapstructure:"hz"`
	Path       PathConfig       `mapstructure:"path"`
	Controller ControllerConfig `mapstructure:"controller"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Link       LinkConfig       `mapstructure:"link"`
	Sim        SimConfig        `mapstructure:"sim"`
	Viz        VizConfig        `mapstructure:"viz"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("hz", 10.0)

	v.SetDefault("path.file", "path.json")
	v.SetDefault("path.dir", "")

	v.SetDefault("controller.look_ahead", 1.0)
	v.SetDefault("controller.look_ahead_factor", 0.0)
	v.SetDefault("controller.stop_tolerance", 0.5)
	v.SetDefault("controller.linear_speed", 1.0)
	v.SetDefault("controller.angular_gain", 1.0)
	v.SetDefault("controller.max_angular_speed", 2.0)
	v.SetDefault("controller.heading_deadband", 0.0)
	v.SetDefault("controller.turn_in_place_angle", math.Pi/2)
	v.SetDefault("controller.allow_reverse", false)

	v.SetDefault("loop.pose_timeout", 500*time.Millisecond)
	v.SetDefault("loop.drive_timeout", 500*time.Millisecond)
	v.SetDefault("loop.halt_timeout", time.Second)
	v.SetDefault("loop.max_retries", 5)
	v.SetDefault("loop.retry_backoff", 100*time.Millisecond)
	v.SetDefault("loop.stall_cycles", 600)
	v.SetDefault("loop.fail_on_stall", false)
	v.SetDefault("loop.progress_interval", time.Second)

	v.SetDefault("link.kind", string(LinkHTTP))
	v.SetDefault("link.http.base_url", "http://127.0.0.1:50000")
	v.SetDefault("link.udp.listen_addr", "127.0.0.1:50001")
	v.SetDefault("link.udp.command_addr", "127.0.0.1:50002")
	v.SetDefault("link.udp.read_buffer", 2048)
	v.SetDefault("link.serial.device", "/dev/ttyUSB0")
	v.SetDefault("link.serial.baud", 115200)
	v.SetDefault("link.serial.read_timeout", 100*time.Millisecond)

	v.SetDefault("sim.addr", "127.0.0.1:50000")
	v.SetDefault("sim.dt", 0.1)
	v.SetDefault("sim.start_x", 0.0)
	v.SetDefault("sim.start_y", 0.0)
	v.SetDefault("sim.start_heading", 0.0)
	v.SetDefault("sim.max_linear_speed", 2.0)
	v.SetDefault("sim.max_angular_speed", 4.0)

	v.SetDefault("viz.enabled", false)
	v.SetDefault("viz.addr", "127.0.0.1:7070")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "pathnav")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
}

// NewViper returns a viper instance with defaults, the optional config file
// and PATHNAV_* environment overrides applied.
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("pathnav")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// LoadConfig unmarshals and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration produced by SetDefaults alone.
func DefaultConfig() AppConfig {
	v := viper.New()
	SetDefaults(v)
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("unmarshal default config: %v", err))
	}
	return cfg
}

// Validate checks every section that can be checked without the path.
func (c AppConfig) Validate() error {
	if c.Hz < 0 {
		return &ConfigError{Field: "hz", Reason: "must be >= 0"}
	}
	ctl := c.Controller
	if ctl.LookAhead == 0 && ctl.LookAheadFactor > 0 {
		// Derived from the path once it is loaded.
		ctl.LookAhead = math.SmallestNonzeroFloat64
	}
	if err := ctl.Validate(); err != nil {
		return err
	}
	if err := c.Loop.Validate(); err != nil {
		return err
	}
	if _, err := ParseLinkKind(string(c.Link.Kind)); err != nil {
		return &ConfigError{Field: "link.kind", Reason: err.Error()}
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return &ConfigError{Field: "logger.format", Reason: `must be "console" or "json"`}
	}
	return nil
}

// Validate checks the loop bounds.
func (c LoopConfig) Validate() error {
	switch {
	case c.PoseTimeout <= 0:
		return &ConfigError{Field: "loop.pose_timeout", Reason: "must be > 0"}
	case c.DriveTimeout <= 0:
		return &ConfigError{Field: "loop.drive_timeout", Reason: "must be > 0"}
	case c.HaltTimeout <= 0:
		return &ConfigError{Field: "loop.halt_timeout", Reason: "must be > 0"}
	case c.MaxRetries < 0:
		return &ConfigError{Field: "loop.max_retries", Reason: "must be >= 0"}
	case c.RetryBackoff < 0:
		return &ConfigError{Field: "loop.retry_backoff", Reason: "must be >= 0"}
	case c.StallCycles < 0:
		return &ConfigError{Field: "loop.stall_cycles", Reason: "must be >= 0"}
	}
	return nil
}
