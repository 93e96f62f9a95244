// Package config loads the waveform service configuration.
//
// Values are resolved in order: `default` struct tags, the YAML file, then
// environment variables. A field's variable is its `env` tag or, when absent,
// WAVEFORM_<SECTION>_<FIELD>.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sleepywoodpecker/rp-goes-waveform/internal/link"
	"sleepywoodpecker/rp-goes-waveform/internal/replay"
)

const envPrefix = "WAVEFORM"

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Serial SerialConfig `yaml:"serial"`
	Dac    DacConfig    `yaml:"dac"`
	Adc    AdcConfig    `yaml:"adc"`
	Stats  StatsConfig  `yaml:"stats"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	// File is the JSON log file. Empty logs to the console only.
	File string `yaml:"file" default:"waveform.logs"`
}

type SerialConfig struct {
	Port        string        `yaml:"port" env:"SERIAL_PORT"`
	BaudRate    int           `yaml:"baud_rate" default:"460800"`
	ReadTimeout time.Duration `yaml:"read_timeout" default:"100ms"`
	// KeepAlive is the KeepAlive message period. Zero disables it.
	KeepAlive time.Duration `yaml:"keep_alive" default:"1s"`
}

type DacConfig struct {
	MaxLen int `yaml:"max_len" default:"1024"`
	// MsgMaxPoints caps one DacData message and so the demand the consumer
	// reserves at once. Zero means max_len. It may exceed max_len, in which
	// case one message spans several swaps or replays of the buffer.
	MsgMaxPoints int `yaml:"msg_max_points" default:"0"`
	// SwapTimeout bounds the OneShot wait for a new waveform. Zero waits
	// forever.
	SwapTimeout time.Duration `yaml:"swap_timeout" default:"0s"`
	InitialMode string        `yaml:"initial_mode" default:"oneshot"`
}

// MessagePoints is the effective DacData capacity in points.
func (d DacConfig) MessagePoints() int {
	if d.MsgMaxPoints > 0 {
		return d.MsgMaxPoints
	}
	return d.MaxLen
}

// Mode parses InitialMode.
func (d DacConfig) Mode() (replay.Mode, error) {
	return replay.ParseMode(d.InitialMode)
}

type AdcConfig struct {
	Channels int `yaml:"channels" default:"4"`
	MaxLen   int `yaml:"max_len" default:"1024"`
}

type StatsConfig struct {
	Period time.Duration `yaml:"period" default:"100ms"`
	// TelegrafAddr receives influx lines over UDP. Empty disables it.
	TelegrafAddr string `yaml:"telegraf_addr" env:"TELEGRAF_ADDR" default:"127.0.0.1:4020"`
	// MetricsAddr serves /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// ValidationError lists every invalid field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Default returns the configuration made of `default` tags only.
func Default() *Config {
	cfg := &Config{}
	if err := setDefaults(reflect.ValueOf(cfg)); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path (optional when it does not exist), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := loadFromEnv(reflect.ValueOf(cfg), envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Serial.Port == "" {
		problems = append(problems, "serial.port is required")
	}
	if c.Serial.BaudRate <= 0 {
		problems = append(problems, "serial.baud_rate must be positive")
	}
	if c.Dac.MaxLen <= 0 {
		problems = append(problems, "dac.max_len must be positive")
	}
	if c.Dac.MsgMaxPoints < 0 {
		problems = append(problems, "dac.msg_max_points must not be negative")
	}
	if c.Dac.MessagePoints()*link.PointSize > link.MaxPayload {
		problems = append(problems, fmt.Sprintf("dac message of %d points exceeds the %d byte payload limit", c.Dac.MessagePoints(), link.MaxPayload))
	}
	if c.Dac.SwapTimeout < 0 {
		problems = append(problems, "dac.swap_timeout must not be negative")
	}
	if _, err := c.Dac.Mode(); err != nil {
		problems = append(problems, fmt.Sprintf("dac.initial_mode: %v", err))
	}
	if c.Adc.Channels < 0 || c.Adc.Channels > 0xff {
		problems = append(problems, "adc.channels must be within 0..255")
	}
	if c.Adc.Channels > 0 && c.Adc.MaxLen <= 0 {
		problems = append(problems, "adc.max_len must be positive")
	}
	if c.Stats.Period <= 0 {
		problems = append(problems, "stats.period must be positive")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func loadFromYAML(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}

func setDefaults(v reflect.Value) error {
	v = reflect.Indirect(v)
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := setDefaults(field); err != nil {
				return err
			}
			continue
		}
		if def, ok := t.Field(i).Tag.Lookup("default"); ok {
			if err := setFieldValue(field, def); err != nil {
				return fmt.Errorf("failed to set default for field %s: %w", t.Field(i).Name, err)
			}
		}
	}
	return nil
}

func loadFromEnv(v reflect.Value, prefix string) error {
	v = reflect.Indirect(v)
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		name := prefix + "_" + strings.ToUpper(fieldType.Name)

		if field.Kind() == reflect.Struct {
			if err := loadFromEnv(field, name); err != nil {
				return err
			}
			continue
		}

		if tag := fieldType.Tag.Get("env"); tag != "" {
			name = envPrefix + "_" + tag
		}
		if value, ok := os.LookupEnv(name); ok {
			if err := setFieldValue(field, value); err != nil {
				return fmt.Errorf("failed to set field %s from env %s: %w", fieldType.Name, name, err)
			}
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration value: %s", value)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}
	return nil
}
