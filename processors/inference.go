package processors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"snowboardCoach/config"
	"snowboardCoach/core"
)

var (
	ErrUnsupportedModel = errors.New("model not supported by provider")
	ErrEmptyOutput      = errors.New("model returned empty output")
	ErrUnexpectedOutput = errors.New("unexpected model output shape")
	ErrMissingToken     = errors.New("inference API token not configured")
)

// Input 推理请求的命名字段。以下划线开头的键只在本进程内使用，不会发送给服务商
type Input map[string]any

const (
	FieldImage        = "image"
	FieldPrompt       = "prompt"
	FieldSystemPrompt = "system_prompt"
	FieldMaxTokens    = "max_tokens"
	FieldTemperature  = "temperature"

	fieldTask = "_task"

	taskImageToImage = "image-to-image"
	taskVision       = "vision"
	taskText         = "text"
)

// NewPoseInput 图生图（姿态叠加）请求
func NewPoseInput(imageDataURI, prompt string) Input {
	return Input{fieldTask: taskImageToImage, FieldImage: imageDataURI, FieldPrompt: prompt}
}

// NewVisionInput 图像理解请求
func NewVisionInput(imageDataURI, prompt string, maxTokens int, temperature float64) Input {
	in := Input{fieldTask: taskVision, FieldImage: imageDataURI, FieldPrompt: prompt}
	setSampling(in, maxTokens, temperature)
	return in
}

// NewTextInput 文本生成请求
func NewTextInput(prompt, systemPrompt string, maxTokens int, temperature float64) Input {
	in := Input{fieldTask: taskText, FieldPrompt: prompt}
	if systemPrompt != "" {
		in[FieldSystemPrompt] = systemPrompt
	}
	setSampling(in, maxTokens, temperature)
	return in
}

func setSampling(in Input, maxTokens int, temperature float64) {
	if maxTokens > 0 {
		in[FieldMaxTokens] = maxTokens
	}
	if temperature > 0 {
		in[FieldTemperature] = temperature
	}
}

// Task 请求类型
func (in Input) Task() string {
	t, _ := in[fieldTask].(string)
	return t
}

// Public 去掉内部字段后的副本
func (in Input) Public() map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

func (in Input) str(key string) string {
	s, _ := in[key].(string)
	return s
}

func (in Input) intField(key string) int {
	switch v := in[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (in Input) floatField(key string) float64 {
	switch v := in[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// OutputKind 服务商返回结构的归一化类型
type OutputKind string

const (
	OutputText   OutputKind = "text"
	OutputTokens OutputKind = "tokens"
	OutputURL    OutputKind = "url"
)

// Output 在客户端边界解码一次后的模型输出
type Output struct {
	Kind   OutputKind
	text   string
	tokens []string
	url    string
	raw    string
}

// TextOutput 构造文本输出
func TextOutput(s string) Output { return Output{Kind: OutputText, text: s, raw: s} }

// TokenOutput 构造 token 序列输出
func TokenOutput(tokens ...string) Output {
	return Output{Kind: OutputTokens, tokens: tokens, raw: fmt.Sprint(tokens)}
}

// URLOutput 构造图像 URL 输出
func URLOutput(url string) Output { return Output{Kind: OutputURL, url: url, raw: url} }

// Text 文本内容；token 序列用单个空格拼接
func (o Output) Text() string {
	switch o.Kind {
	case OutputText:
		return o.text
	case OutputTokens:
		return strings.Join(o.tokens, " ")
	}
	return ""
}

// ImageURL 图像地址；token 序列取第一个 http(s) 元素
func (o Output) ImageURL() string {
	switch o.Kind {
	case OutputURL:
		return o.url
	case OutputTokens:
		for _, t := range o.tokens {
			if isHTTPURL(t) {
				return t
			}
		}
	case OutputText:
		if isHTTPURL(strings.TrimSpace(o.text)) {
			return strings.TrimSpace(o.text)
		}
	}
	return ""
}

// Raw 原始输出的字符串形式
func (o Output) Raw() string { return o.raw }

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// DecodeOutput 将服务商返回的任意结构解码为 Output
func DecodeOutput(raw any) (Output, error) {
	switch v := raw.(type) {
	case nil:
		return Output{}, ErrEmptyOutput
	case string:
		return TextOutput(v), nil
	case []string:
		return TokenOutput(v...), nil
	case []any:
		tokens := make([]string, 0, len(v))
		for i, el := range v {
			switch e := el.(type) {
			case string:
				tokens = append(tokens, e)
			case map[string]any:
				inner, err := DecodeOutput(e)
				if err != nil {
					return Output{}, fmt.Errorf("element %d: %w", i, err)
				}
				if u := inner.ImageURL(); u != "" {
					tokens = append(tokens, u)
				} else {
					tokens = append(tokens, inner.Text())
				}
			default:
				return Output{}, fmt.Errorf("%w: element %d is %T", ErrUnexpectedOutput, i, el)
			}
		}
		if len(tokens) == 0 {
			return Output{}, ErrEmptyOutput
		}
		return TokenOutput(tokens...), nil
	case map[string]any:
		if u, ok := v["url"].(string); ok && u != "" {
			return URLOutput(u), nil
		}
		if out, ok := v["output"]; ok {
			return DecodeOutput(out)
		}
		return Output{}, fmt.Errorf("%w: object without url or output", ErrUnexpectedOutput)
	}
	return Output{}, fmt.Errorf("%w: %T", ErrUnexpectedOutput, raw)
}

// Client 推理服务客户端：一次调用对应一次请求/响应，不重试
type Client interface {
	Invoke(ctx context.Context, model string, input Input) (Output, error)
}

// ClientFunc 函数适配器
type ClientFunc func(ctx context.Context, model string, input Input) (Output, error)

func (f ClientFunc) Invoke(ctx context.Context, model string, input Input) (Output, error) {
	return f(ctx, model, input)
}

// NewClient 按配置选择服务商，进程启动时创建一次
func NewClient(cfg *config.Config, logger zerolog.Logger) Client {
	var c Client
	switch cfg.Provider {
	case config.ProviderMock:
		c = NewMockClient()
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn().Msg("OPENAI_API_KEY not set, every model call will fail")
			c = unavailableClient{}
		} else {
			c = NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		}
	default:
		rc, err := NewReplicateClient(cfg.ReplicateAPIToken)
		if err != nil {
			logger.Warn().Err(err).Msg("replicate client unavailable, every model call will fail")
			c = unavailableClient{}
		} else {
			c = rc
		}
	}
	return Instrument(c, logger)
}

type unavailableClient struct{}

func (unavailableClient) Invoke(ctx context.Context, model string, input Input) (Output, error) {
	return Output{}, ErrMissingToken
}

// Instrument 为客户端增加日志与调用计数
func Instrument(c Client, logger zerolog.Logger) Client {
	log := logger.With().Str("component", "inference").Logger()
	return ClientFunc(func(ctx context.Context, model string, input Input) (Output, error) {
		start := time.Now()
		out, err := c.Invoke(ctx, model, input)
		if err != nil {
			core.InferenceCallsTotal.WithLabelValues(model, "error").Inc()
			log.Warn().Err(err).Str("model", model).Str("task", input.Task()).Dur("elapsed", time.Since(start)).Msg("model call failed")
			return Output{}, err
		}
		core.InferenceCallsTotal.WithLabelValues(model, "ok").Inc()
		log.Debug().Str("model", model).Str("task", input.Task()).Str("kind", string(out.Kind)).Dur("elapsed", time.Since(start)).Msg("model call completed")
		return out, nil
	})
}
