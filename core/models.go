package core

import (
	"encoding/base64"
	"time"
)

// ========== 基础数据结构 ==========

// Frame 从视频中抽取的一帧，Index 从 1 开始
type Frame struct {
	Index        int     `json:"index"`
	Path         string  `json:"path"`
	TimestampSec float64 `json:"timestamp_sec"`
	Data         []byte  `json:"-"`
	Encoding     string  `json:"encoding"`
}

// DataURI 以 data URI 形式返回图像内容，供推理接口直接使用
func (f Frame) DataURI() string {
	enc := f.Encoding
	if enc == "" {
		enc = "image/jpeg"
	}
	return "data:" + enc + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// ========== 分析阶段结果 ==========

// StageKind 阶段结果类型
type StageKind string

const (
	StagePoseOverlay StageKind = "pose-overlay-url"
	StageTechnical   StageKind = "technical-text"
	StageScene       StageKind = "scene-text"
	StageReport      StageKind = "report-text"
)

// StageResult 单个阶段产出，创建后不可修改
type StageResult struct {
	kind       StageKind
	stage      string
	frameIndex int
	text       string
	url        string
}

// NewPoseResult 姿态阶段产出（图像 URL）
func NewPoseResult(stage string, frameIndex int, url, raw string) StageResult {
	return StageResult{kind: StagePoseOverlay, stage: stage, frameIndex: frameIndex, url: url, text: raw}
}

// NewTextResult 文本阶段产出
func NewTextResult(kind StageKind, stage string, frameIndex int, text string) StageResult {
	return StageResult{kind: kind, stage: stage, frameIndex: frameIndex, text: text}
}

func (r StageResult) Kind() StageKind { return r.kind }
func (r StageResult) Stage() string   { return r.stage }
func (r StageResult) FrameIndex() int { return r.frameIndex }
func (r StageResult) Text() string    { return r.text }
func (r StageResult) URL() string     { return r.url }

// Value 返回该结果的主要内容：URL 类型返回 URL，其余返回文本
func (r StageResult) Value() string {
	if r.kind == StagePoseOverlay {
		return r.url
	}
	return r.text
}

// PoseImage 姿态叠加图
type PoseImage struct {
	Frame    int    `json:"frame"`
	ImageURL string `json:"imageUrl"`
	Raw      string `json:"-"`
}

// DetailedPrompts 三个延迟提交的提示词模板，必须同时存在
type DetailedPrompts struct {
	Strengths    string `json:"strengths"`
	Improvements string `json:"improvements"`
	Drills       string `json:"drills"`
}

// Complete 三个模板是否都存在
func (p *DetailedPrompts) Complete() bool {
	return p != nil && p.Strengths != "" && p.Improvements != "" && p.Drills != ""
}

// Pipeline identifiers reported to clients.
const (
	PipelinePose       = "pose-enhanced"
	PipelineMultiFrame = "multi-frame-vision"
	PipelinePremium    = "premium-parallel"
	PipelineFallback   = "fallback"
)

// AnalysisReport 一次上传的完整分析结果，只存在于单个请求周期内
type AnalysisReport struct {
	Assessment        string           `json:"analysis"`
	Pipeline          string           `json:"pipeline"`
	DetailedPrompts   *DetailedPrompts `json:"detailedPrompts"`
	TechnicalAnalysis string           `json:"technicalAnalysis"`
	SceneDescription  string           `json:"sceneDescription"`
	PoseImages        []PoseImage      `json:"poseImages,omitempty"`
	Stages            []StageResult    `json:"-"`
	Fallback          bool             `json:"fallback"`
	FallbackReason    string           `json:"fallbackReason,omitempty"`
	FrameCount        int              `json:"frameCount"`
	Duration          time.Duration    `json:"-"`
}

// PoseVideoURL 第一张姿态叠加图，没有则为空
func (r *AnalysisReport) PoseVideoURL() string {
	if r == nil || len(r.PoseImages) == 0 {
		return ""
	}
	return r.PoseImages[0].ImageURL
}

// ========== 对话 ==========

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn 浏览器端保存的对话记录，服务端不持久化
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ========== HTTP 请求/响应 ==========

type UploadResponse struct {
	Success           bool             `json:"success"`
	Analysis          string           `json:"analysis"`
	Pipeline          string           `json:"pipeline"`
	PoseVideoURL      *string          `json:"poseVideoUrl"`
	TechnicalAnalysis string           `json:"technicalAnalysis"`
	SceneDescription  string           `json:"sceneDescription"`
	DetailedPrompts   *DetailedPrompts `json:"detailedPrompts"`
	Message           string           `json:"message"`
	PoseImages        []PoseImage      `json:"poseImages,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AnalysisData 客户端回传的分析上下文
type AnalysisData struct {
	DetailedPrompts   *DetailedPrompts `json:"detailedPrompts"`
	TechnicalAnalysis string           `json:"technicalAnalysis"`
	SceneDescription  string           `json:"sceneDescription"`
}

type ChatRequest struct {
	Question     string       `json:"question"`
	AnalysisData AnalysisData `json:"analysisData"`
	History      []ChatTurn   `json:"history,omitempty"`
}

type ChatResponse struct {
	Success     bool   `json:"success"`
	Response    string `json:"response"`
	SectionType string `json:"sectionType"`
	Message     string `json:"message"`
}
