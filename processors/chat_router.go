package processors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"snowboardCoach/config"
	"snowboardCoach/core"
)

var ErrEmptyQuestion = errors.New("question is required")

// Section 追问的分类
type Section struct {
	Key      string
	Title    string
	Keywords []string

	pattern *regexp.Regexp
}

const (
	SectionStrengths    = "strengths"
	SectionImprovements = "improvements"
	SectionDrills       = "drills"
	SectionGeneric      = "generic"
)

// newSection 关键词只在词首匹配，"strain" 不会命中 "train"
func newSection(key, title string, keywords ...string) Section {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return Section{
		Key:      key,
		Title:    title,
		Keywords: keywords,
		pattern:  regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`),
	}
}

// Sections 按匹配优先级排列：优势 → 改进 → 练习
var Sections = []Section{
	newSection(SectionStrengths, "Key Strengths",
		"strength", "strong", "positive", "doing well", "doing right", "good at"),
	newSection(SectionImprovements, "Areas for Improvement",
		"improve", "problem", "issue", "wrong", "weak", "mistake", "fix"),
	newSection(SectionDrills, "Recommended Drills",
		"drill", "exercise", "practice", "train"),
}

// GenericSection 未命中任何关键词
var GenericSection = Section{Key: SectionGeneric, Title: "Coach Response"}

// Route 大小写不敏感的词首匹配，第一个命中的分类胜出
func Route(question string) Section {
	for _, s := range Sections {
		if s.pattern.MatchString(question) {
			return s
		}
	}
	return GenericSection
}

// templateFor 分类对应的延迟模板
func templateFor(section Section, prompts *core.DetailedPrompts) string {
	switch section.Key {
	case SectionStrengths:
		return prompts.Strengths
	case SectionImprovements:
		return prompts.Improvements
	case SectionDrills:
		return prompts.Drills
	}
	return ""
}

// ChatAnswer 一次追问的结果
type ChatAnswer struct {
	Section Section
	Prompt  string
	Text    string
}

// ChatRouter 追问路由：选择模板或通用提示词并提交给文本模型
type ChatRouter struct {
	client     Client
	models     config.ModelConfig
	normalizer *Normalizer
	logger     zerolog.Logger
}

func NewChatRouter(client Client, models config.ModelConfig, logger zerolog.Logger) *ChatRouter {
	return &ChatRouter{
		client:     client,
		models:     models,
		normalizer: NewNormalizer(),
		logger:     logger.With().Str("component", "chat").Logger(),
	}
}

// BuildPrompt 选择提示词；模板缺失或不完整时使用回退报告的模板
func (c *ChatRouter) BuildPrompt(req core.ChatRequest) (Section, string) {
	section := Route(req.Question)
	if section.Key == SectionGeneric {
		data := req.AnalysisData
		return section, ChatPrompt(req.Question, data.TechnicalAnalysis, data.SceneDescription, req.History)
	}

	prompts := req.AnalysisData.DetailedPrompts
	if !prompts.Complete() {
		c.logger.Debug().Str("section", section.Key).Msg("detailed prompts missing, using fallback templates")
		prompts = NewFallbackReport("").DetailedPrompts
	}
	return section, templateFor(section, prompts)
}

// Answer 路由并调用文本模型
func (c *ChatRouter) Answer(ctx context.Context, req core.ChatRequest) (ChatAnswer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return ChatAnswer{}, ErrEmptyQuestion
	}

	section, prompt := c.BuildPrompt(req)
	core.ChatRoutesTotal.WithLabelValues(section.Key).Inc()

	in := NewTextInput(prompt, coachSystemPrompt, c.models.MaxTokens, c.models.Temperature)
	out, err := c.client.Invoke(ctx, c.models.Text, in)
	if err != nil {
		return ChatAnswer{}, fmt.Errorf("chat %s: %w", section.Key, err)
	}

	text := c.normalizer.Normalize(out.Text())
	if text == "" {
		return ChatAnswer{}, fmt.Errorf("chat %s: %w", section.Key, ErrEmptyOutput)
	}

	c.logger.Info().Str("section", section.Key).Int("chars", len(text)).Msg("follow-up answered")
	return ChatAnswer{Section: section, Prompt: prompt, Text: text}, nil
}
