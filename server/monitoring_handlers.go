package server

import (
	"net/http"
	"time"

	"snowboardCoach/config"
	"snowboardCoach/core"
)

// MonitoringHandlers 监控相关的HTTP处理器
type MonitoringHandlers struct {
	cfg       *config.Config
	startTime time.Time
}

// NewMonitoringHandlers 创建监控处理器实例
func NewMonitoringHandlers(cfg *config.Config, startTime time.Time) *MonitoringHandlers {
	return &MonitoringHandlers{cfg: cfg, startTime: startTime}
}

// HealthCheckHandler 健康检查处理器，只报告静态能力，不调用推理服务
func (h *MonitoringHandlers) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	report := core.BuildHealthReport(core.HealthInput{
		Environment:     h.cfg.NodeEnv,
		Provider:        h.cfg.Provider,
		TokenConfigured: h.cfg.HasValidAPI(),
		Models: map[string]string{
			"pose":   h.cfg.Models.Pose,
			"vision": h.cfg.Models.Vision,
			"text":   h.cfg.Models.Text,
		},
		Capabilities: core.Capabilities{
			Pipelines: []string{
				core.PipelineMultiFrame,
				core.PipelinePose,
				core.PipelinePremium,
				core.PipelineFallback,
			},
			PoseAnalysis:  h.cfg.Models.Pose != "",
			FollowUpChat:  true,
			MaxUploadSize: h.cfg.MaxFileSize,
			FrameCount:    h.cfg.Frames.Count,
		},
		StartTime: h.startTime,
	})

	core.WriteJSON(w, http.StatusOK, report)
}
