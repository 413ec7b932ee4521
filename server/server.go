package server

import (
	"context"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"snowboardCoach/config"
	"snowboardCoach/core"
	"snowboardCoach/processors"
)

// FrameExtractor 从视频中抽帧并加载图像数据
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath, framesDir string) ([]core.Frame, error)
}

// Analyzer 运行分析编排，总是返回报告
type Analyzer interface {
	Run(ctx context.Context, frames []core.Frame, opts processors.RunOptions) *core.AnalysisReport
}

// Answerer 处理追问
type Answerer interface {
	Answer(ctx context.Context, req core.ChatRequest) (processors.ChatAnswer, error)
}

// Deps 服务依赖，进程启动时创建一次
type Deps struct {
	Config    *config.Config
	Extractor FrameExtractor
	Analyzer  Analyzer
	Chat      Answerer
	Logger    zerolog.Logger
}

// Server HTTP 服务
type Server struct {
	analysis   *AnalysisHandlers
	chat       *ChatHandlers
	monitoring *MonitoringHandlers
	logger     zerolog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger.With().Str("component", "http").Logger()
	return &Server{
		analysis:   NewAnalysisHandlers(d.Config, d.Extractor, d.Analyzer, logger),
		chat:       NewChatHandlers(d.Chat, logger),
		monitoring: NewMonitoringHandlers(d.Config, time.Now()),
		logger:     logger,
	}
}

// Handler 注册全部路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// 分析
	mux.HandleFunc("POST /api/upload", s.analysis.UploadHandler)
	mux.HandleFunc("POST /api/analyze-pose", s.analysis.AnalyzePoseHandler)

	// 追问
	mux.HandleFunc("POST /api/chat", s.chat.ChatHandler)

	// 监控
	mux.HandleFunc("GET /api/health", s.monitoring.HealthCheckHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	// 页面
	static, _ := fs.Sub(webFS, "web")
	mux.Handle("GET /", http.FileServer(http.FS(static)))

	return s.withLogging(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging 请求日志与延迟指标
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		core.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())

		evt := s.logger.Info()
		if rec.status >= http.StatusInternalServerError {
			evt = s.logger.Error()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}
