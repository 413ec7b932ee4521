package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowboardCoach/config"
	"snowboardCoach/core"
	"snowboardCoach/processors"
)

var testModels = config.ModelConfig{Pose: "test/pose", Vision: "test/vision", Text: "test/text"}

// fakeExtractor 在帧目录中写入若干文件并返回对应帧
type fakeExtractor struct {
	count     int
	err       error
	framesDir string
}

func (f *fakeExtractor) ExtractFrames(ctx context.Context, videoPath, framesDir string) ([]core.Frame, error) {
	f.framesDir = framesDir
	if _, err := os.Stat(videoPath); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	frames := make([]core.Frame, f.count)
	for i := range frames {
		path := filepath.Join(framesDir, fmt.Sprintf("frame_%02d.jpg", i+1))
		if err := os.WriteFile(path, []byte{0xff, 0xd8}, 0644); err != nil {
			return nil, err
		}
		frames[i] = core.Frame{Index: i + 1, Path: path, Data: []byte{byte(i)}, Encoding: "image/jpeg"}
	}
	return frames, nil
}

func scriptedClient(poseFails bool, chatErr error) processors.Client {
	return processors.ClientFunc(func(ctx context.Context, model string, in processors.Input) (processors.Output, error) {
		switch model {
		case testModels.Pose:
			if poseFails {
				return processors.Output{}, errors.New("pose offline")
			}
			return processors.URLOutput("https://cdn.test/pose.png"), nil
		case testModels.Vision:
			return processors.TextOutput("knees bent , weight centered"), nil
		default:
			if chatErr != nil {
				return processors.Output{}, chatErr
			}
			return processors.TokenOutput("Ass", "ess", "ment", ":", "nice", "riding"), nil
		}
	})
}

type testEnv struct {
	handler   http.Handler
	extractor *fakeExtractor
	uploadDir string
}

func newTestEnv(t *testing.T, client processors.Client) *testEnv {
	t.Helper()
	uploadDir := t.TempDir()
	cfg := &config.Config{
		Port:        3000,
		MaxFileSize: 1 << 20,
		NodeEnv:     "test",
		UploadDir:   uploadDir,
		Provider:    config.ProviderMock,
		Models:      testModels,
		Frames:      config.FrameConfig{Count: 10},
	}
	extractor := &fakeExtractor{count: 10}
	srv := New(Deps{
		Config:    cfg,
		Extractor: extractor,
		Analyzer:  processors.NewOrchestrator(client, testModels, zerolog.Nop()),
		Chat:      processors.NewChatRouter(client, testModels, zerolog.Nop()),
		Logger:    zerolog.Nop(),
	})
	return &testEnv{handler: srv.Handler(), extractor: extractor, uploadDir: uploadDir}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field, filename, contentType string, content []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, target, contentType string, content []byte, extra map[string]string) *http.Request {
	body, ct := multipartBody(t, "video", "run.mp4", contentType, content, extra)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertWorkspaceRemoved(t *testing.T, env *testEnv) {
	t.Helper()
	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	if env.extractor.framesDir != "" {
		_, err := os.Stat(env.extractor.framesDir)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[core.HealthReport](t, rec)
	assert.Contains(t, []string{"ok", "degraded"}, report.Status)
	assert.Equal(t, "mock", report.Provider)
	assert.True(t, report.TokenConfigured)
	assert.Len(t, report.Capabilities.Pipelines, 4)
	assert.Equal(t, int64(1<<20), report.Capabilities.MaxUploadSize)
}

func TestUploadMultiFrame(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))
	rec := env.do(uploadRequest(t, "/api/upload", "video/mp4", []byte("fake video"), nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, core.PipelineMultiFrame, resp["pipeline"])
	assert.Equal(t, "Assessment: nice riding", resp["analysis"])
	assert.Nil(t, resp["poseVideoUrl"])
	assert.Contains(t, resp["technicalAnalysis"], "knees bent, weight centered")
	assert.Len(t, resp["detailedPrompts"], 3)
	assert.NotContains(t, resp, "poseImages")

	assertWorkspaceRemoved(t, env)
}

func TestUploadPoseQueryParam(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))
	rec := env.do(uploadRequest(t, "/api/upload?pose=true", "video/quicktime", []byte("fake"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[core.UploadResponse](t, rec)
	assert.Equal(t, core.PipelinePose, resp.Pipeline)
	require.NotNil(t, resp.PoseVideoURL)
	assert.Equal(t, "https://cdn.test/pose.png", *resp.PoseVideoURL)
}

func TestUploadPremiumFormField(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))
	rec := env.do(uploadRequest(t, "/api/upload", "video/mp4", []byte("fake"), map[string]string{"premium": "true"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.PipelinePremium, decode[core.UploadResponse](t, rec).Pipeline)
}

func TestAnalyzePose(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))
	rec := env.do(uploadRequest(t, "/api/analyze-pose", "video/mp4", []byte("fake"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[core.UploadResponse](t, rec)
	assert.Equal(t, core.PipelinePose, resp.Pipeline)
	assert.Len(t, resp.PoseImages, processors.MaxPoseFrames)
	assertWorkspaceRemoved(t, env)
}

func TestUploadAllPoseFramesFail(t *testing.T) {
	env := newTestEnv(t, scriptedClient(true, nil))
	rec := env.do(uploadRequest(t, "/api/upload", "video/mp4", []byte("fake"), map[string]string{"poseAnalysis": "true"}))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, core.PipelineFallback, resp["pipeline"])
	assert.Equal(t, processors.FallbackMessage, resp["message"])
	prompts, ok := resp["detailedPrompts"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, prompts, 3)
	for _, key := range []string{"strengths", "improvements", "drills"} {
		assert.NotEmpty(t, prompts[key])
	}
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))

	t.Run("missing file", func(t *testing.T) {
		body, ct := multipartBody(t, "", "", "", nil, map[string]string{"pose": "true"})
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", ct)
		rec := env.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decode[core.ErrorResponse](t, rec).Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
	})

	t.Run("wrong mime type", func(t *testing.T) {
		rec := env.do(uploadRequest(t, "/api/upload", "text/plain", []byte("hello"), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Please upload a video file", decode[core.ErrorResponse](t, rec).Error)
	})

	t.Run("too large", func(t *testing.T) {
		rec := env.do(uploadRequest(t, "/api/upload", "video/mp4", bytes.Repeat([]byte("x"), 1<<20+10), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File too large", decode[core.ErrorResponse](t, rec).Error)
	})

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadExtractionFailure(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))
	env.extractor.err = errors.New("ffmpeg exited with status 1")

	rec := env.do(uploadRequest(t, "/api/upload", "video/mp4", []byte("fake"), nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[core.ErrorResponse](t, rec)
	assert.Equal(t, "Failed to process video", resp.Error)
	assert.Contains(t, resp.Details, "ffmpeg")
	assertWorkspaceRemoved(t, env)
}

func chatRequest(t *testing.T, body any) *http.Request {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))
	rec := env.do(chatRequest(t, core.ChatRequest{
		Question: "What are my strengths?",
		AnalysisData: core.AnalysisData{
			DetailedPrompts: processors.BuildDetailedPrompts("knees bent"),
		},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[core.ChatResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Key Strengths", resp.SectionType)
	assert.Equal(t, "Assessment: nice riding", resp.Response)
}

func TestChatErrors(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, errors.New("provider down")))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)

	assert.Equal(t, http.StatusBadRequest, env.do(chatRequest(t, map[string]string{"question": " "})).Code)

	rec := env.do(chatRequest(t, map[string]string{"question": "Which drills?"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[core.ErrorResponse](t, rec).Details, "provider down")
}

func TestIndexAndMetrics(t *testing.T) {
	env := newTestEnv(t, scriptedClient(false, nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Snowboard Coach")

	env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "snowcoach_http_request_duration_seconds")
}

func TestIsVideo(t *testing.T) {
	assert.True(t, isVideo("video/mp4", "a.bin"))
	assert.True(t, isVideo("", "clip.MOV"))
	assert.True(t, isVideo("application/octet-stream", "clip.webm"))
	assert.False(t, isVideo("application/octet-stream", "clip.txt"))
	assert.False(t, isVideo("image/png", "clip.mp4"))
}
