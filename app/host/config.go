package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/usbshark/usbshark/link"
	"github.com/usbshark/usbshark/usb"
)

// captureYAML mirrors link.CaptureConfig in config-file form. Transfer
// classes default to enabled; a filter of 0 means no restriction.
type captureYAML struct {
	Speed       string `yaml:"speed"`
	Control     *bool  `yaml:"control"`
	Bulk        *bool  `yaml:"bulk"`
	Interrupt   *bool  `yaml:"interrupt"`
	Isochronous *bool  `yaml:"isochronous"`
	Address     uint8  `yaml:"address"`
	Endpoint    uint8  `yaml:"endpoint"`
	ExcludeIn   bool   `yaml:"exclude_in"`
	ExcludeOut  bool   `yaml:"exclude_out"`
}

type hostConfig struct {
	Device  string      `yaml:"device"`
	Baud    int         `yaml:"baud"`
	Connect string      `yaml:"connect"` // TCP address of a --listen agent
	API     string      `yaml:"api"`     // HTTP listen address, empty = off
	Capture captureYAML `yaml:"capture"`
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		Device: os.Getenv(envDevice),
		Baud:   defaultBaud,
		Capture: captureYAML{
			Speed: "full",
		},
	}
}

// loadConfig reads the YAML config file when present; a missing path is
// not an error, the defaults apply.
func loadConfig(path string) (hostConfig, error) {
	cfg := defaultHostConfig()
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Baud == 0 {
		cfg.Baud = defaultBaud
	}
	return cfg, nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// captureConfig converts the YAML form into the wire config.
func (c *hostConfig) captureConfig() (link.CaptureConfig, error) {
	var speed usb.Speed
	switch c.Capture.Speed {
	case "", "full":
		speed = usb.FullSpeed
	case "low":
		speed = usb.LowSpeed
	default:
		return link.CaptureConfig{}, fmt.Errorf("unknown capture speed %q (want low or full)", c.Capture.Speed)
	}
	if c.Capture.Address > 127 {
		return link.CaptureConfig{}, fmt.Errorf("address filter %d out of range", c.Capture.Address)
	}
	if c.Capture.Endpoint > 15 {
		return link.CaptureConfig{}, fmt.Errorf("endpoint filter %d out of range", c.Capture.Endpoint)
	}
	return link.CaptureConfig{
		Speed:          speed,
		Control:        enabled(c.Capture.Control),
		Bulk:           enabled(c.Capture.Bulk),
		Interrupt:      enabled(c.Capture.Interrupt),
		Isochronous:    enabled(c.Capture.Isochronous),
		AddressFilter:  c.Capture.Address,
		EndpointFilter: c.Capture.Endpoint,
		FilterIn:       c.Capture.ExcludeIn,
		FilterOut:      c.Capture.ExcludeOut,
	}, nil
}
