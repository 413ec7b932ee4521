package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"snowboardCoach/core"
)

// FrameOptions 抽帧参数
type FrameOptions struct {
	Count          int
	Width          int
	Height         int
	MaxEncodeWidth int
}

// FFmpegExtractor 在固定的相对时间点抽帧，任何一帧失败则整体失败
type FFmpegExtractor struct {
	opts   FrameOptions
	logger zerolog.Logger
}

// NewFFmpegExtractor 创建抽帧器
func NewFFmpegExtractor(opts FrameOptions, logger zerolog.Logger) *FFmpegExtractor {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 640, 360
	}
	return &FFmpegExtractor{
		opts:   opts,
		logger: logger.With().Str("component", "extractor").Logger(),
	}
}

// EvenFractions 返回 n 个均匀分布的相对时间点，取每段中点
func EvenFractions(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = (float64(i) + 0.5) / float64(n)
	}
	return out
}

// FramePath 第 index 帧（从 1 开始）的文件路径
func FramePath(framesDir string, index int) string {
	return filepath.Join(framesDir, fmt.Sprintf("frame_%02d.jpg", index))
}

// ExtractFrames 抽帧并编码为推理可用的图像数据
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, videoPath, framesDir string) ([]core.Frame, error) {
	if !FileExists(videoPath) {
		return nil, fmt.Errorf("video file does not exist at path: %s", videoPath)
	}
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	duration, err := ProbeDuration(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("video has no measurable duration")
	}

	fractions := EvenFractions(e.opts.Count)
	timestamps := make([]float64, len(fractions))
	for i, f := range fractions {
		timestamps[i] = f * duration
	}

	e.logger.Debug().
		Str("video", videoPath).
		Float64("duration", duration).
		Int("frames", len(timestamps)).
		Msg("extracting frames")

	frames := make([]core.Frame, 0, len(timestamps))
	for i, ts := range timestamps {
		out := FramePath(framesDir, i+1)
		if err := RunFFmpeg(ctx, extractFrameArgs(videoPath, out, ts, e.opts.Width, e.opts.Height)); err != nil {
			return nil, fmt.Errorf("extract frame %d at %.2fs: %w", i+1, ts, err)
		}
		frames = append(frames, core.Frame{Index: i + 1, Path: out, TimestampSec: ts})
	}

	if err := LoadFrameData(frames, e.opts.MaxEncodeWidth); err != nil {
		return nil, err
	}

	core.FramesExtractedTotal.Add(float64(len(frames)))
	e.logger.Info().Int("count", len(frames)).Float64("duration", duration).Msg("frames extracted")
	return frames, nil
}

func extractFrameArgs(videoPath, out string, ts float64, width, height int) []string {
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height,
	)
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", scale,
		"-q:v", "2",
		out,
	}
}

// LoadFrameData 读取帧文件并填充 Data/Encoding
func LoadFrameData(frames []core.Frame, maxWidth int) error {
	for i := range frames {
		data, enc, err := EncodeImageFile(frames[i].Path, maxWidth)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", frames[i].Index, err)
		}
		frames[i].Data = data
		frames[i].Encoding = enc
	}
	return nil
}

// RunFFmpeg 执行FFmpeg命令
func RunFFmpeg(ctx context.Context, args []string) error {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ProbeDuration 读取视频时长（秒）
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseDuration(out.String())
}

func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe returned no duration")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}
