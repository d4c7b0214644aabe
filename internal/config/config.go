package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the user's playback and sample preferences.
type Config struct {
	SampleRate int     `yaml:"sample_rate"`
	Tempo      float64 `yaml:"tempo"`
	Speed      float64 `yaml:"speed"`
	Meter      int     `yaml:"meter"`
	Metronome  bool    `yaml:"metronome"`

	SamplesDir string `yaml:"samples_dir,omitempty"`
	SoundFont  string `yaml:"soundfont,omitempty"`
	Program    int    `yaml:"program,omitempty"`
	TuningFile string `yaml:"tuning_file,omitempty"`

	Lookahead time.Duration `yaml:"lookahead"`
	Interval  time.Duration `yaml:"interval"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		SampleRate: 44100,
		Tempo:      120,
		Speed:      1,
		Meter:      4,
		Lookahead:  400 * time.Millisecond,
		Interval:   100 * time.Millisecond,
	}
}

// Dir returns the config directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tabplay"), nil
}

// Path returns the full path to config.yaml
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields defaults; fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return Default(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return errors.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	case !(c.Tempo > 0):
		return errors.Errorf("tempo must be positive, got %v", c.Tempo)
	case !(c.Speed > 0):
		return errors.Errorf("speed must be positive, got %v", c.Speed)
	case c.Meter != 3 && c.Meter != 4:
		return errors.Errorf("meter must be 3 or 4, got %d", c.Meter)
	case c.Lookahead <= 0 || c.Interval <= 0:
		return errors.New("lookahead and interval must be positive")
	}
	return nil
}

// Save writes the config to path, creating its directory if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return os.WriteFile(path, data, 0644)
}
