package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	EditorConfig struct {
		InlineImageLimit int `yaml:"inline_image_limit" validate:"min=1,max=16"`
	}

	NormalizeConfig struct {
		CleanupPasses int `yaml:"cleanup_passes" validate:"min=1,max=50"`
	}

	AutosaveConfig struct {
		Idle           time.Duration `yaml:"idle" validate:"gt=0"`
		Ceiling        time.Duration `yaml:"ceiling" validate:"gtefield=Idle"`
		MaxRetries     int           `yaml:"max_retries" validate:"gte=0,max=10"`
		Backoff        time.Duration `yaml:"backoff" validate:"gt=0"`
		RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	}

	PickerConfig struct {
		Catalog          string `yaml:"catalog" sanitize:"path_clean" validate:"required,filepath"`
		Scope            string `yaml:"scope" validate:"oneof=all used unused"`
		ThumbnailSize    int    `yaml:"thumbnail_size" validate:"min=32,max=1024"`
		ThumbnailQuality int    `yaml:"thumbnail_quality" validate:"min=40,max=100"`
		ThumbnailURL     string `yaml:"thumbnail_url"`
		InspectURL       string `yaml:"inspect_url"`
	}

	ServerConfig struct {
		Listen   string       `yaml:"listen" validate:"required,hostname_port"`
		Database string       `yaml:"database" sanitize:"path_clean" validate:"required,filepath"`
		URL      string       `yaml:"url" validate:"required,url"`
		Document string       `yaml:"document" validate:"omitempty,uuid"`
		Token    SecretString `yaml:"token,omitempty"`
	}

	ExportConfig struct {
		Format             ExportFormat `yaml:"format" validate:"oneof=html xhtml"`
		OutputNameTemplate string       `yaml:"output_name_template"`
		Transliterate      bool         `yaml:"transliterate"`
		Encoding           string       `yaml:"encoding"`
	}

	Config struct {
		Version   int             `yaml:"version" validate:"eq=1"`
		Editor    EditorConfig    `yaml:"editor"`
		Normalize NormalizeConfig `yaml:"normalize"`
		Autosave  AutosaveConfig  `yaml:"autosave"`
		Picker    PickerConfig    `yaml:"picker"`
		Server    ServerConfig    `yaml:"server"`
		Export    ExportConfig    `yaml:"export"`
		Logging   LoggingConfig   `yaml:"logging"`
		Reporting ReporterConfig  `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// only fields we defined are allowed, so no yaml.Unmarshal here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to
// provide sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

// Dump returns actual configuration as YAML, secrets are masked.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
