package processors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"snowboardCoach/config"
	"snowboardCoach/core"
)

var (
	ErrNoFrames     = errors.New("no frames to analyze")
	ErrNoPoseFrames = errors.New("pose model failed on every frame")
)

// MaxPoseFrames 姿态阶段最多处理的帧数
const MaxPoseFrames = 5

// RunOptions 单次分析的路径选择
type RunOptions struct {
	Pose    bool
	Premium bool
}

// Orchestrator 分析编排器：姿态 → 技术分析 → 场景描述 → 总评
type Orchestrator struct {
	client     Client
	models     config.ModelConfig
	normalizer *Normalizer
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewOrchestrator 创建编排器
func NewOrchestrator(client Client, models config.ModelConfig, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		client:     client,
		models:     models,
		normalizer: NewNormalizer(),
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		tracer:     otel.Tracer("snowboardCoach/processors"),
	}
}

// SelectKeyFrames 首、中、尾三帧的下标，帧数不足时去重
func SelectKeyFrames(n int) []int {
	if n <= 0 {
		return nil
	}
	candidates := []int{0, n / 2, n - 1}
	keys := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if len(keys) > 0 && keys[len(keys)-1] == c {
			continue
		}
		keys = append(keys, c)
	}
	return keys
}

// Run 执行分析；任何不可恢复的错误都返回回退报告，调用方不需要再处理错误
func (o *Orchestrator) Run(ctx context.Context, frames []core.Frame, opts RunOptions) *core.AnalysisReport {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "analysis", trace.WithAttributes(
		attribute.Int("frames", len(frames)),
		attribute.Bool("pose", opts.Pose),
		attribute.Bool("premium", opts.Premium),
	))
	defer span.End()

	report, err := o.analyze(ctx, frames, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn().Err(err).Int("frames", len(frames)).Msg("analysis failed, returning fallback report")
		report = NewFallbackReport(err.Error())
		report.FrameCount = len(frames)
	}

	report.Duration = time.Since(start)
	core.AnalysesTotal.WithLabelValues(report.Pipeline).Inc()
	span.SetAttributes(attribute.String("pipeline", report.Pipeline))
	o.logger.Info().
		Str("pipeline", report.Pipeline).
		Int("frames", report.FrameCount).
		Int("pose_images", len(report.PoseImages)).
		Dur("elapsed", report.Duration).
		Msg("analysis finished")
	return report
}

func (o *Orchestrator) analyze(ctx context.Context, frames []core.Frame, opts RunOptions) (*core.AnalysisReport, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	report := &core.AnalysisReport{FrameCount: len(frames), Pipeline: core.PipelineMultiFrame}

	if opts.Pose {
		images, stages, err := o.poseStage(ctx, frames)
		if err != nil {
			return nil, err
		}
		report.PoseImages = images
		report.Stages = append(report.Stages, stages...)
		report.Pipeline = core.PipelinePose
	}
	if opts.Premium {
		report.Pipeline = core.PipelinePremium
	}

	keys := SelectKeyFrames(len(frames))

	technicalCalls := make([]frameCall, len(keys))
	sceneCalls := make([]frameCall, len(keys))
	for pos, idx := range keys {
		f := frames[idx]
		phase := PhaseName(pos, len(keys))
		technicalCalls[pos] = frameCall{
			frame: f,
			label: fmt.Sprintf("Frame %d (%s)", f.Index, phase),
			input: NewVisionInput(f.DataURI(), TechnicalPrompt(phase, f, opts.Pose), o.models.MaxTokens, o.models.Temperature),
		}
		sceneCalls[pos] = frameCall{
			frame: f,
			label: capitalize(phase),
			input: NewVisionInput(f.DataURI(), ScenePrompt(phase), o.models.MaxTokens, o.models.Temperature),
		}
	}

	technical, stages, err := o.frameStage(ctx, "technical", core.StageTechnical, technicalCalls, opts.Premium)
	if err != nil {
		return nil, err
	}
	report.TechnicalAnalysis = technical
	report.Stages = append(report.Stages, stages...)

	scene, stages, err := o.frameStage(ctx, "scene", core.StageScene, sceneCalls, opts.Premium)
	if err != nil {
		return nil, err
	}
	report.SceneDescription = scene
	report.Stages = append(report.Stages, stages...)

	assessment, err := o.reportStage(ctx, technical, scene)
	if err != nil {
		return nil, err
	}
	report.Assessment = assessment
	report.Stages = append(report.Stages, core.NewTextResult(core.StageReport, "report", 0, assessment))
	report.DetailedPrompts = BuildDetailedPrompts(technical)

	return report, nil
}

// stage 为单个阶段计时并创建 span
func (o *Orchestrator) stage(ctx context.Context, name string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "stage."+name)
	return ctx, func(err error) {
		core.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// poseStage 单帧失败跳过，全部失败才报错
func (o *Orchestrator) poseStage(ctx context.Context, frames []core.Frame) (images []core.PoseImage, stages []core.StageResult, err error) {
	ctx, done := o.stage(ctx, "pose")
	defer func() { done(err) }()

	n := min(MaxPoseFrames, len(frames))
	for _, f := range frames[:n] {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		out, callErr := o.client.Invoke(ctx, o.models.Pose, NewPoseInput(f.DataURI(), posePrompt))
		if callErr == nil && out.ImageURL() == "" {
			callErr = fmt.Errorf("%w: no image url in pose output", ErrEmptyOutput)
		}
		if callErr != nil {
			core.PoseFramesSkipped.Inc()
			o.logger.Warn().Err(callErr).Int("frame", f.Index).Msg("pose frame skipped")
			continue
		}

		images = append(images, core.PoseImage{Frame: f.Index, ImageURL: out.ImageURL(), Raw: out.Raw()})
		stages = append(stages, core.NewPoseResult("pose", f.Index, out.ImageURL(), out.Raw()))
	}

	if len(images) == 0 {
		return nil, nil, ErrNoPoseFrames
	}
	o.logger.Debug().Int("succeeded", len(images)).Int("attempted", n).Msg("pose stage complete")
	return images, stages, nil
}

type frameCall struct {
	frame core.Frame
	label string
	input Input
}

// frameStage 逐帧调用视觉模型，结果按帧顺序拼接
func (o *Orchestrator) frameStage(ctx context.Context, name string, kind core.StageKind, calls []frameCall, concurrent bool) (joined string, stages []core.StageResult, err error) {
	ctx, done := o.stage(ctx, name)
	defer func() { done(err) }()

	texts := make([]string, len(calls))
	if concurrent {
		g, gctx := errgroup.WithContext(ctx)
		for i, call := range calls {
			g.Go(func() error {
				text, err := o.describe(gctx, call)
				if err != nil {
					return err
				}
				texts[i] = text
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", nil, fmt.Errorf("%s stage: %w", name, err)
		}
	} else {
		for i, call := range calls {
			text, err := o.describe(ctx, call)
			if err != nil {
				return "", nil, fmt.Errorf("%s stage: %w", name, err)
			}
			texts[i] = text
		}
	}

	parts := make([]string, len(calls))
	stages = make([]core.StageResult, len(calls))
	for i, call := range calls {
		parts[i] = fmt.Sprintf("**%s:** %s", call.label, texts[i])
		stages[i] = core.NewTextResult(kind, name, call.frame.Index, texts[i])
	}
	return o.normalizer.Normalize(strings.Join(parts, "\n\n")), stages, nil
}

func (o *Orchestrator) describe(ctx context.Context, call frameCall) (string, error) {
	out, err := o.client.Invoke(ctx, o.models.Vision, call.input)
	if err != nil {
		return "", fmt.Errorf("frame %d: %w", call.frame.Index, err)
	}
	text := o.normalizer.Normalize(out.Text())
	if text == "" {
		return "", fmt.Errorf("frame %d: %w", call.frame.Index, ErrEmptyOutput)
	}
	return text, nil
}

func (o *Orchestrator) reportStage(ctx context.Context, technical, scene string) (text string, err error) {
	ctx, done := o.stage(ctx, "report")
	defer func() { done(err) }()

	in := NewTextInput(ReportPrompt(technical, scene), coachSystemPrompt, o.models.MaxTokens, o.models.Temperature)
	out, err := o.client.Invoke(ctx, o.models.Text, in)
	if err != nil {
		return "", fmt.Errorf("report stage: %w", err)
	}
	text = o.normalizer.Normalize(out.Text())
	if text == "" {
		return "", fmt.Errorf("report stage: %w", ErrEmptyOutput)
	}
	return text, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
