package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"snowboardCoach/config"
	"snowboardCoach/core"
	"snowboardCoach/processors"
	"snowboardCoach/utils"
)

// multipart 边界和其它字段的额外余量
const multipartOverhead = 1 << 20

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".avi": true,
	".mkv": true, ".webm": true, ".mpeg": true, ".mpg": true, ".3gp": true,
}

var (
	errNoVideo      = errors.New("no video file in field \"video\"")
	errNotVideo     = errors.New("uploaded file is not a video")
	errFileTooLarge = errors.New("uploaded file exceeds the size limit")
)

// AnalysisHandlers 上传与分析
type AnalysisHandlers struct {
	cfg       *config.Config
	extractor FrameExtractor
	analyzer  Analyzer
	logger    zerolog.Logger
}

func NewAnalysisHandlers(cfg *config.Config, extractor FrameExtractor, analyzer Analyzer, logger zerolog.Logger) *AnalysisHandlers {
	return &AnalysisHandlers{cfg: cfg, extractor: extractor, analyzer: analyzer, logger: logger}
}

// UploadHandler POST /api/upload
func (h *AnalysisHandlers) UploadHandler(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, false)
}

// AnalyzePoseHandler POST /api/analyze-pose，总是走姿态路径
func (h *AnalysisHandlers) AnalyzePoseHandler(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, true)
}

func (h *AnalysisHandlers) handle(w http.ResponseWriter, r *http.Request, forcePose bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			core.WriteError(w, http.StatusBadRequest, "File too large", errFileTooLarge)
			return
		}
		core.WriteError(w, http.StatusBadRequest, "No video file uploaded", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		core.WriteError(w, http.StatusBadRequest, "No video file uploaded", errNoVideo)
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxFileSize {
		core.WriteError(w, http.StatusBadRequest, "File too large", errFileTooLarge)
		return
	}
	if !isVideo(header.Header.Get("Content-Type"), header.Filename) {
		core.WriteError(w, http.StatusBadRequest, "Please upload a video file", errNotVideo)
		return
	}

	opts := processors.RunOptions{
		Pose:    forcePose || flag(r, "poseAnalysis", "pose"),
		Premium: flag(r, "premium", "premium"),
	}

	ws, err := utils.NewWorkspace(h.cfg.UploadDir, h.logger)
	if err != nil {
		h.logger.Error().Err(err).Msg("create workspace")
		core.WriteError(w, http.StatusInternalServerError, "Failed to process video", err)
		return
	}
	defer ws.Cleanup()

	videoPath, err := ws.SaveVideo(file, header.Filename)
	if err != nil {
		h.logger.Error().Err(err).Str("job", ws.ID).Msg("save upload")
		core.WriteError(w, http.StatusInternalServerError, "Failed to process video", err)
		return
	}

	log := h.logger.With().Str("job", ws.ID).Logger()
	log.Info().
		Str("file", header.Filename).
		Int64("size", header.Size).
		Bool("pose", opts.Pose).
		Bool("premium", opts.Premium).
		Msg("upload received")

	frames, err := h.extractor.ExtractFrames(r.Context(), videoPath, ws.FramesDir)
	if err != nil {
		log.Error().Err(err).Msg("frame extraction failed")
		core.WriteError(w, http.StatusInternalServerError, "Failed to process video", err)
		return
	}

	report := h.analyzer.Run(r.Context(), frames, opts)
	core.WriteJSON(w, http.StatusOK, uploadResponse(report))
}

func uploadResponse(report *core.AnalysisReport) core.UploadResponse {
	resp := core.UploadResponse{
		Success:           true,
		Analysis:          report.Assessment,
		Pipeline:          report.Pipeline,
		TechnicalAnalysis: report.TechnicalAnalysis,
		SceneDescription:  report.SceneDescription,
		DetailedPrompts:   report.DetailedPrompts,
		Message:           "Analysis complete",
		PoseImages:        report.PoseImages,
	}
	if u := report.PoseVideoURL(); u != "" {
		resp.PoseVideoURL = &u
	}
	if report.Fallback {
		resp.Message = processors.FallbackMessage
	}
	return resp
}

// isVideo 以 Content-Type 为准，缺失或为通用二进制类型时看扩展名
func isVideo(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "video/") {
		return true
	}
	if ct == "" || ct == "application/octet-stream" {
		return videoExtensions[strings.ToLower(filepath.Ext(filename))]
	}
	return false
}

// flag 表单字段或查询参数为 "true"
func flag(r *http.Request, formKey, queryKey string) bool {
	return strings.EqualFold(r.FormValue(formKey), "true") || strings.EqualFold(r.URL.Query().Get(queryKey), "true")
}
