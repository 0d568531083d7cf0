package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/wheatscan/internal/common"
)

const EnvPrefix = "WHEATSCAN_"

type Classifier struct {
	BaseURL    string        `yaml:"baseUrl" env:"BASE_URL" validate:"required,url"`
	Path       string        `yaml:"path" env:"PATH" validate:"required"`
	FieldName  string        `yaml:"fieldName" env:"FIELD_NAME" validate:"required"`
	LabelField string        `yaml:"labelField" env:"LABEL_FIELD" validate:"required"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	UserAgent  string        `yaml:"userAgent" env:"USER_AGENT"`
}

type Scaler struct {
	MaxWidth  int `yaml:"maxWidth" env:"MAX_WIDTH" validate:"min=1"`
	MaxHeight int `yaml:"maxHeight" env:"MAX_HEIGHT" validate:"min=1"`
	MaxPixels int `yaml:"maxPixels" env:"MAX_PIXELS" validate:"min=1"`
}

type Storage struct {
	PhotoDir   string `yaml:"photoDir" env:"PHOTO_DIR" validate:"required"`
	LibraryDir string `yaml:"libraryDir" env:"LIBRARY_DIR"`
}

type Camera struct {
	Type    string   `yaml:"type" env:"TYPE" validate:"oneof=browser command"`
	Command []string `yaml:"command" env:"COMMAND" envSeparator:" "`
}

type Session struct {
	Type             string        `yaml:"type" env:"TYPE" validate:"oneof=memory sqlite redis"`
	ConnectionString string        `yaml:"connectionString" env:"CONNECTION_STRING"`
	TTL              time.Duration `yaml:"ttl" env:"TTL"`
}

type Connectivity struct {
	Mode         string        `yaml:"mode" env:"MODE" validate:"oneof=auto always never"`
	ProbeAddress string        `yaml:"probeAddress" env:"PROBE_ADDRESS"`
	ProbeTimeout time.Duration `yaml:"probeTimeout" env:"PROBE_TIMEOUT"`
}

type Search struct {
	BaseURL string `yaml:"baseUrl" env:"BASE_URL"`
}

// Settings holds the host commands that open the settings screens linked
// from the offline and permission dialogs.
type Settings struct {
	Wifi        []string `yaml:"wifi" env:"WIFI" envSeparator:" "`
	MobileData  []string `yaml:"mobileData" env:"MOBILE_DATA" envSeparator:" "`
	Permissions []string `yaml:"permissions" env:"PERMISSIONS" envSeparator:" "`
}

type ServiceConfig struct {
	Port         int          `yaml:"port" env:"PORT" validate:"min=1,max=65535"`
	LogLevel     string       `yaml:"logLevel" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat    string       `yaml:"logFormat" env:"LOG_FORMAT" validate:"oneof=text json"`
	Classifier   Classifier   `yaml:"classifier" envPrefix:"CLASSIFIER_"`
	Scaler       Scaler       `yaml:"scaler" envPrefix:"SCALER_"`
	Storage      Storage      `yaml:"storage" envPrefix:"STORAGE_"`
	Camera       Camera       `yaml:"camera" envPrefix:"CAMERA_"`
	Session      Session      `yaml:"session" envPrefix:"SESSION_"`
	Connectivity Connectivity `yaml:"connectivity" envPrefix:"CONNECTIVITY_"`
	Search       Search       `yaml:"search" envPrefix:"SEARCH_"`
	Settings     Settings     `yaml:"settings" envPrefix:"SETTINGS_"`
}

func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "text",
		Classifier: Classifier{
			Path:       "predict",
			FieldName:  "file",
			LabelField: "prediction",
			Timeout:    30 * time.Second,
			UserAgent:  "wheatscan/1.0",
		},
		Scaler: Scaler{
			MaxWidth:  1024,
			MaxHeight: 1024,
			MaxPixels: 48_000_000,
		},
		Storage: Storage{
			PhotoDir: defaultPhotoDir(),
		},
		Camera: Camera{
			Type: "browser",
		},
		Session: Session{
			Type: "memory",
			TTL:  30 * time.Minute,
		},
		Connectivity: Connectivity{
			Mode:         "auto",
			ProbeTimeout: 3 * time.Second,
		},
		Search: Search{
			BaseURL: "https://www.google.com/search",
		},
	}
}

func defaultPhotoDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "wheatscan", "photos")
}

// LoadConfig applies the YAML file at configPath (skipped when empty) and
// WHEATSCAN_* environment variables on top of the defaults, then validates.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func validateConfig(config *ServiceConfig) error {
	if err := common.ValidateStruct(config); err != nil {
		return err
	}

	var errs []error
	if config.Session.Type != "memory" && config.Session.ConnectionString == "" {
		errs = append(errs, fmt.Errorf("session type %s requires a connectionString", config.Session.Type))
	}
	if config.Camera.Type == "command" && len(config.Camera.Command) == 0 {
		errs = append(errs, errors.New("camera type command requires a command"))
	}
	if config.Classifier.Timeout < 0 {
		errs = append(errs, errors.New("classifier timeout must not be negative"))
	}
	if config.Session.TTL < 0 {
		errs = append(errs, errors.New("session ttl must not be negative"))
	}
	return errors.Join(errs...)
}
