package core

import (
	"os/exec"
	"runtime"
	"time"
)

// HealthCheck 单项健康检查
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"go_version"`
	NumCPU    int    `json:"num_cpu"`
}

// Capabilities 服务能力描述
type Capabilities struct {
	Pipelines     []string `json:"pipelines"`
	PoseAnalysis  bool     `json:"poseAnalysis"`
	FollowUpChat  bool     `json:"followUpChat"`
	MaxUploadSize int64    `json:"maxUploadSize"`
	FrameCount    int      `json:"frameCount"`
}

// HealthReport GET /api/health 的响应
type HealthReport struct {
	Status          string                 `json:"status"`
	Timestamp       int64                  `json:"timestamp"`
	Uptime          float64                `json:"uptime_seconds"`
	Environment     string                 `json:"environment"`
	Provider        string                 `json:"provider"`
	TokenConfigured bool                   `json:"tokenConfigured"`
	Models          map[string]string      `json:"models"`
	Capabilities    Capabilities           `json:"capabilities"`
	Checks          map[string]HealthCheck `json:"checks"`
	System          SystemInfo             `json:"system"`
}

// HealthInput 构建健康报告所需的静态信息
type HealthInput struct {
	Environment     string
	Provider        string
	TokenConfigured bool
	Models          map[string]string
	Capabilities    Capabilities
	StartTime       time.Time
}

// BuildHealthReport 生成健康报告，只做 PATH 查找，不执行外部命令
func BuildHealthReport(in HealthInput) HealthReport {
	checks := map[string]HealthCheck{
		"ffmpeg":  checkBinary("ffmpeg"),
		"ffprobe": checkBinary("ffprobe"),
	}
	if in.TokenConfigured {
		checks["inference"] = HealthCheck{Status: "ok", Message: in.Provider + " credentials configured"}
	} else {
		checks["inference"] = HealthCheck{Status: "degraded", Message: "no API token, analyses will use the fallback report"}
	}

	status := "ok"
	for _, c := range checks {
		if c.Status != "ok" {
			status = "degraded"
			break
		}
	}

	return HealthReport{
		Status:          status,
		Timestamp:       time.Now().Unix(),
		Uptime:          time.Since(in.StartTime).Seconds(),
		Environment:     in.Environment,
		Provider:        in.Provider,
		TokenConfigured: in.TokenConfigured,
		Models:          in.Models,
		Capabilities:    in.Capabilities,
		Checks:          checks,
		System: SystemInfo{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			GoVersion: runtime.Version(),
			NumCPU:    runtime.NumCPU(),
		},
	}
}

func checkBinary(name string) HealthCheck {
	path, err := exec.LookPath(name)
	if err != nil {
		return HealthCheck{Status: "error", Message: name + " not found in PATH"}
	}
	return HealthCheck{Status: "ok", Message: path}
}
