package processors

import (
	"fmt"
	"strings"

	"snowboardCoach/core"
	"snowboardCoach/utils"
)

const (
	reportTechnicalLimit   = 1500
	reportSceneLimit       = 800
	templateTechnicalLimit = 1200
	chatTechnicalLimit     = 1000
	chatSceneLimit         = 500
	chatHistoryTurns       = 4
	chatHistoryTurnLimit   = 400
)

const coachSystemPrompt = "You are an experienced, encouraging snowboard coach. Give specific, practical feedback in plain language."

const posePrompt = "full body pose skeleton of a snowboarder, openpose"

// phaseNames 关键帧对应的动作阶段
var phaseNames = []string{"initiation", "execution", "completion"}

// PhaseName 关键帧在序列中的阶段名
func PhaseName(position, total int) string {
	if total >= len(phaseNames) && position < len(phaseNames) {
		return phaseNames[position]
	}
	switch {
	case position == 0:
		return phaseNames[0]
	case position == total-1:
		return phaseNames[2]
	default:
		return phaseNames[1]
	}
}

// TechnicalPrompt 单帧技术分析提示词
func TechnicalPrompt(phase string, frame core.Frame, withPose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert snowboard coach reviewing frame %d, the %s phase of a rider's run. ", frame.Index, phase)
	b.WriteString("Analyze the rider's body position: stance width, knee and ankle flex, hip and shoulder alignment relative to the board, weight distribution between the feet, arm position, and edge angle. ")
	if withPose {
		b.WriteString("A pose skeleton was extracted for this run, so comment on joint angles where visible. ")
	}
	b.WriteString("Be specific and concise.")
	return b.String()
}

// ScenePrompt 单帧场景描述提示词
func ScenePrompt(phase string) string {
	return fmt.Sprintf("Describe the %s phase of this snowboarding moment: terrain and snow conditions, the turn or trick being attempted, and how the rider is moving. Keep it to two or three sentences.", phase)
}

// ReportPrompt 总体评估提示词
func ReportPrompt(technical, scene string) string {
	return fmt.Sprintf(`Here is a frame-by-frame technical analysis of a snowboarder:

%s

And a description of the run:

%s

Write a brief overall assessment of this rider's technique in 4-6 sentences. Start with what they do well, then name the single most important thing to work on.`,
		utils.Truncate(technical, reportTechnicalLimit),
		utils.Truncate(scene, reportSceneLimit))
}

// BuildDetailedPrompts 构造三个延迟提交的模板，只嵌入技术分析的截断片段
func BuildDetailedPrompts(technical string) *core.DetailedPrompts {
	slice := utils.Truncate(technical, templateTechnicalLimit)
	return &core.DetailedPrompts{
		Strengths: fmt.Sprintf(`Based on this technical analysis of a snowboarder:

%s

Provide 3-4 key strengths in the rider's technique. Be specific about what they are doing right and why it works.`, slice),
		Improvements: fmt.Sprintf(`Based on this technical analysis of a snowboarder:

%s

Provide 3-4 specific areas for improvement, most important first. For each, explain what to change and what it should feel like.`, slice),
		Drills: fmt.Sprintf(`Based on this technical analysis of a snowboarder:

%s

Provide 3-4 specific drills or exercises that target the rider's weaknesses. Include how to perform each drill and what to focus on.`, slice),
	}
}

// ChatPrompt 通用追问提示词
func ChatPrompt(question, technical, scene string, history []core.ChatTurn) string {
	var b strings.Builder
	b.WriteString("A snowboarder has received a video analysis of their riding.\n\n")
	if technical != "" {
		fmt.Fprintf(&b, "Technical analysis:\n%s\n\n", utils.Truncate(technical, chatTechnicalLimit))
	}
	if scene != "" {
		fmt.Fprintf(&b, "Scene description:\n%s\n\n", utils.Truncate(scene, chatSceneLimit))
	}
	if len(history) > chatHistoryTurns {
		history = history[len(history)-chatHistoryTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range history {
			role := "Rider"
			if turn.Role == core.RoleAssistant {
				role = "Coach"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, utils.TruncateWithEllipsis(turn.Content, chatHistoryTurnLimit))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "The rider asks: %q\n\nAnswer as their coach in a short, practical paragraph.", question)
	return b.String()
}

// 分析失败时使用的静态文本
const (
	FallbackAssessment = `We couldn't complete a full AI analysis of this video, so here is a general assessment.

Most riders benefit from three fundamentals: a balanced, centered stance with knees and ankles flexed; shoulders kept parallel to the board through the turn; and early, progressive edge engagement instead of a late skid. Use the follow-up questions to dig into strengths, improvements, or drills.`

	fallbackTechnical = `General snowboarding fundamentals (no frame-specific analysis available):
- Stance: shoulder-width or slightly wider, knees and ankles flexed, weight centered over the board.
- Upper body: shoulders aligned with the board, arms relaxed and quiet, head up looking down the fall line.
- Turning: initiate with the lower body, engage the edge progressively, avoid counter-rotating the shoulders.
- Common issues: sitting back on the tail, straight legs, and skidding turns from late edge changes.`

	FallbackMessage = "AI analysis was unavailable; showing general coaching guidance."
)

// NewFallbackReport 分析失败时的报告，不发起任何模型调用
func NewFallbackReport(reason string) *core.AnalysisReport {
	return &core.AnalysisReport{
		Assessment:        FallbackAssessment,
		Pipeline:          core.PipelineFallback,
		DetailedPrompts:   BuildDetailedPrompts(fallbackTechnical),
		TechnicalAnalysis: fallbackTechnical,
		Fallback:          true,
		FallbackReason:    reason,
	}
}
