package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

const (
	// DefaultMaxFileSize 本地部署的上传上限
	DefaultMaxFileSize int64 = 50 << 20
	// ServerlessMaxFileSize serverless 平台的请求体上限
	ServerlessMaxFileSize int64 = 8 << 20

	ProviderReplicate = "replicate"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// Config 应用配置，先读 yaml 文件，再由环境变量覆盖
type Config struct {
	ReplicateAPIToken string `yaml:"replicate_api_token" env:"REPLICATE_API_TOKEN"`
	Port              int    `yaml:"port" env:"PORT"`
	MaxFileSize       int64  `yaml:"max_file_size" env:"MAX_FILE_SIZE"`
	NodeEnv           string `yaml:"node_env" env:"NODE_ENV"`
	UploadDir         string `yaml:"upload_dir" env:"UPLOAD_DIR"`

	Provider      string `yaml:"provider" env:"INFERENCE_PROVIDER"`
	OpenAIAPIKey  string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`

	Models ModelConfig `yaml:"models"`
	Frames FrameConfig `yaml:"frames"`

	LogLevel        string `yaml:"log_level" env:"LOG_LEVEL"`
	LogPretty       bool   `yaml:"log_pretty" env:"LOG_PRETTY"`
	TracingEndpoint string `yaml:"tracing_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// ModelConfig 各阶段使用的模型标识
type ModelConfig struct {
	Pose   string `yaml:"pose" env:"POSE_MODEL"`
	Vision string `yaml:"vision" env:"VISION_MODEL"`
	Text   string `yaml:"text" env:"TEXT_MODEL"`

	MaxTokens   int     `yaml:"max_tokens" env:"TEXT_MAX_TOKENS"`
	Temperature float64 `yaml:"temperature" env:"TEXT_TEMPERATURE"`
}

// FrameConfig 抽帧参数
type FrameConfig struct {
	Count    int `yaml:"count" env:"FRAME_COUNT"`
	Width    int `yaml:"width" env:"FRAME_WIDTH"`
	Height   int `yaml:"height" env:"FRAME_HEIGHT"`
	MaxWidth int `yaml:"max_encode_width" env:"FRAME_MAX_ENCODE_WIDTH"`
}

// Load 读取配置文件（可选）并应用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	maxFromFile := cfg.MaxFileSize
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// serverless 平台请求体有硬上限，除非显式指定否则使用 8MB
	if cfg.IsServerless() && os.Getenv("MAX_FILE_SIZE") == "" && maxFromFile == DefaultMaxFileSize {
		cfg.MaxFileSize = ServerlessMaxFileSize
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return cfg, nil
}

// 社区模型必须带版本号，官方模型走 owner/name 端点
const (
	DefaultPoseModel   = "jagilley/controlnet-pose:0304f7f774ba7341ef754231f794b1ba3d129e3c46af3022241325ae0c50fb99"
	DefaultVisionModel = "yorickvp/llava-13b:80537f9eead1a5bfa72d5ac6ea6414379be41d4d4f6679fd776e9535d1eb58bb"
	DefaultTextModel   = "meta/meta-llama-3-8b-instruct"
)

func defaultConfig() *Config {
	return &Config{
		Port:        3000,
		MaxFileSize: DefaultMaxFileSize,
		NodeEnv:     "development",
		UploadDir:   "uploads",
		Provider:    ProviderReplicate,
		Models: ModelConfig{
			Pose:        DefaultPoseModel,
			Vision:      DefaultVisionModel,
			Text:        DefaultTextModel,
			MaxTokens:   512,
			Temperature: 0.7,
		},
		Frames: FrameConfig{
			Count:    10,
			Width:    640,
			Height:   360,
			MaxWidth: 512,
		},
		LogLevel: "info",
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Validate 校验配置，汇总所有错误
func (c *Config) Validate() error {
	var errors []string

	if c.Port <= 0 || c.Port > 65535 {
		errors = append(errors, fmt.Sprintf("port out of range: %d", c.Port))
	}

	if c.MaxFileSize <= 0 {
		errors = append(errors, "max file size must be positive")
	}

	if strings.TrimSpace(c.UploadDir) == "" {
		errors = append(errors, "upload dir is required")
	}

	switch c.Provider {
	case ProviderReplicate, ProviderOpenAI, ProviderMock:
	default:
		errors = append(errors, fmt.Sprintf("unknown inference provider %q", c.Provider))
	}

	if strings.TrimSpace(c.Models.Vision) == "" || strings.TrimSpace(c.Models.Text) == "" {
		errors = append(errors, "vision and text models are required")
	}

	if c.Frames.Count < 3 {
		errors = append(errors, "frame count must be at least 3")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// HasValidAPI 当前 provider 是否配置了可用凭证
func (c *Config) HasValidAPI() bool {
	switch c.Provider {
	case ProviderMock:
		return true
	case ProviderOpenAI:
		return strings.TrimSpace(c.OpenAIAPIKey) != ""
	default:
		return strings.TrimSpace(c.ReplicateAPIToken) != ""
	}
}

// IsServerless NODE_ENV 为 serverless 时使用较小的上传上限
func (c *Config) IsServerless() bool {
	return strings.EqualFold(c.NodeEnv, "serverless")
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.NodeEnv, "production")
}

// Addr HTTP 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AbsUploadDir 上传目录的绝对路径
func (c *Config) AbsUploadDir() (string, error) {
	return filepath.Abs(c.UploadDir)
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
