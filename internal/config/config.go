// Package config loads the service configuration from YAML with struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Server     ServerConfig     `yaml:"server"`
	Editor     EditorConfig     `yaml:"editor"`
	Completion CompletionConfig `yaml:"completion"`
	Storage    StorageConfig    `yaml:"storage"`
	Render     RenderConfig     `yaml:"render"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

type SiteConfig struct {
	Name string `yaml:"name" default:"The Archive"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port string `yaml:"port" default:"12600"`
}

type EditorConfig struct {
	// Quiet period after the last draft change before autosave fires.
	Debounce time.Duration `yaml:"debounce" default:"750ms"`
	// Two-character sequence that starts an AI completion.
	CompletionMarker string `yaml:"completion_marker" default:"++"`
	// Retries after a failed autosave; 0 disables retrying.
	SaveRetries      int           `yaml:"save_retries" default:"3"`
	SaveRetryBackoff time.Duration `yaml:"save_retry_backoff" default:"500ms"`
	UndoLimit        int           `yaml:"undo_limit" default:"200"`
}

type CompletionConfig struct {
	// One of "openai" or "mock".
	Provider     string `yaml:"provider" default:"mock"`
	Model        string `yaml:"model" default:"gpt-4o-mini"`
	BaseURL      string `yaml:"base_url" default:""`
	APIKeyEnv    string `yaml:"api_key_env" default:"OPENAI_API_KEY"`
	MaxTokens    int    `yaml:"max_tokens" default:"200"`
	SystemPrompt string `yaml:"system_prompt" default:"You are an AI writing assistant that continues existing text based on context from prior text. Give more weight to the later characters than the beginning ones. Limit your response to no more than 200 characters, but make sure to construct complete sentences."`
}

type StorageConfig struct {
	// One of "sqlite", "fs" or "s3".
	Backend      string        `yaml:"backend" default:"sqlite"`
	Path         string        `yaml:"path" default:"./database.db"`
	Compression  string        `yaml:"compression" default:"zstd"`
	ReloadPeriod time.Duration `yaml:"reload_period" default:"10s"`
	S3           S3Config      `yaml:"s3"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket" default:""`
	Endpoint     string `yaml:"endpoint" default:""`
	Region       string `yaml:"region" default:"auto"`
	Prefix       string `yaml:"prefix" default:"posts/"`
	AccessKeyEnv string `yaml:"access_key_env" default:"S3_ACCESS_KEY_ID"`
	SecretKeyEnv string `yaml:"secret_key_env" default:"S3_SECRET_ACCESS_KEY"`
}

type RenderConfig struct {
	// One of "mmark", "goldmark" or "classic".
	Renderer    string `yaml:"renderer" default:"mmark"`
	SyntaxTheme string `yaml:"syntax_theme" default:"gruvbox"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// One of "ed25519" or "clerk".
	Type         string `yaml:"type" default:"ed25519"`
	PublicKeyEnv string `yaml:"public_key_env" default:"ED25519_PUBKEY"`
	ClerkKeyEnv  string `yaml:"clerk_key_env" default:"CLERK_API"`
	AdminUser    string `yaml:"admin_user" default:"admin"`
}

var AppConfig = Default()

// Default returns a Config with every default tag applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
		AppConfig = config
		return config, nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	AppConfig = config
	return config, nil
}

// Validate checks enumerated fields and value ranges.
func (c *Config) Validate() error {
	if c.Editor.Debounce <= 0 {
		return fmt.Errorf("editor.debounce must be positive, got %s", c.Editor.Debounce)
	}
	if len([]rune(c.Editor.CompletionMarker)) != 2 {
		return fmt.Errorf("editor.completion_marker must be exactly two characters, got %q", c.Editor.CompletionMarker)
	}
	if c.Editor.SaveRetries < 0 {
		return fmt.Errorf("editor.save_retries must not be negative")
	}
	if !oneOf(c.Completion.Provider, "openai", "mock") {
		return fmt.Errorf("unknown completion.provider %q", c.Completion.Provider)
	}
	if !oneOf(c.Storage.Backend, "sqlite", "fs", "s3") {
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
	}
	if !oneOf(c.Render.Renderer, "mmark", "goldmark", "classic") {
		return fmt.Errorf("unknown render.renderer %q", c.Render.Renderer)
	}
	if !oneOf(c.Auth.Type, "ed25519", "clerk") {
		return fmt.Errorf("unknown auth.type %q", c.Auth.Type)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if d, err := time.ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(d))
			} else {
				configLogger.Warn().Str("field_name", fieldType.Name).Err(err).Msg("Invalid duration default")
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
