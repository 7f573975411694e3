package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	PPS      PPSConfig      `yaml:"pps"`
	Chrony   ChronyConfig   `yaml:"chrony"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	NTPCheck NTPCheckConfig `yaml:"ntpcheck"`
	Driver   DriverConfig   `yaml:"driver"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type PPSConfig struct {
	Source   string `yaml:"source"` // kernel | gpio | off
	Device   string `yaml:"device"`
	GPIOChip string `yaml:"gpio_chip"`
	GPIOLine int    `yaml:"gpio_line"`
	Edge     string `yaml:"edge"` // assert | clear
}

type ChronyConfig struct {
	Sock string `yaml:"sock"`
}

type MonitorConfig struct {
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type NTPCheckConfig struct {
	Servers  []string      `yaml:"servers"`
	Interval time.Duration `yaml:"interval"`
}

type DriverConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// TimeoutPolls is the watchdog expiry in polls; 0 selects the
	// default, negative disables the watchdog.
	TimeoutPolls     int  `yaml:"timeout_polls"`
	Binary           bool `yaml:"binary"`
	PositionInterval int  `yaml:"position_interval"`
	Mobile           bool `yaml:"mobile"`
	Debug            bool `yaml:"debug"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Serial.Device == "" {
		return Config{}, fmt.Errorf("serial.device is required")
	}
	if cfg.Serial.Baud <= 0 {
		cfg.Serial.Baud = 115200
	}

	if cfg.PPS.Source == "" {
		cfg.PPS.Source = "kernel"
	}
	switch cfg.PPS.Source {
	case "kernel", "gpio", "off":
	default:
		return Config{}, fmt.Errorf("pps.source must be one of kernel, gpio, off")
	}
	if cfg.PPS.Device == "" {
		cfg.PPS.Device = "/dev/pps0"
	}
	if cfg.PPS.GPIOChip == "" {
		cfg.PPS.GPIOChip = "/dev/gpiochip0"
	}
	if cfg.PPS.Source == "gpio" && cfg.PPS.GPIOLine <= 0 {
		return Config{}, fmt.Errorf("pps.gpio_line is required when pps.source is gpio")
	}
	if cfg.PPS.Edge == "" {
		cfg.PPS.Edge = "assert"
	}
	switch cfg.PPS.Edge {
	case "assert", "clear":
	default:
		return Config{}, fmt.Errorf("pps.edge must be assert or clear")
	}

	if cfg.Monitor.Interval < 0 {
		return Config{}, fmt.Errorf("monitor.interval must be positive")
	}
	if cfg.Monitor.Dest != "" && cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 1 * time.Second
	}
	if cfg.NTPCheck.Interval < 0 {
		return Config{}, fmt.Errorf("ntpcheck.interval must be positive")
	}
	if len(cfg.NTPCheck.Servers) > 0 && cfg.NTPCheck.Interval == 0 {
		cfg.NTPCheck.Interval = 30 * time.Minute
	}

	if cfg.Driver.PollInterval < 0 {
		return Config{}, fmt.Errorf("driver.poll_interval must be positive")
	}
	if cfg.Driver.PollInterval == 0 {
		cfg.Driver.PollInterval = 1 * time.Second
	}
	if cfg.Driver.TimeoutPolls == 0 {
		cfg.Driver.TimeoutPolls = 120
	}
	if cfg.Driver.PositionInterval <= 0 {
		cfg.Driver.PositionInterval = 30
	}

	return cfg, nil
}
