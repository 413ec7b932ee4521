package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Workspace 单次请求的临时目录：上传的视频、frames/ 目录及其中的帧文件
type Workspace struct {
	ID        string
	Dir       string
	FramesDir string
	VideoPath string

	logger zerolog.Logger
}

// NewWorkspace 在 root 下创建 <uuid>/frames
func NewWorkspace(root string, logger zerolog.Logger) (*Workspace, error) {
	id := NewID()
	dir := filepath.Join(root, id)
	framesDir := filepath.Join(dir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		ID:        id,
		Dir:       dir,
		FramesDir: framesDir,
		logger:    logger.With().Str("workspace", id).Logger(),
	}, nil
}

// SaveVideo 将上传内容写入工作目录
func (w *Workspace) SaveVideo(r io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 6 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	path := filepath.Join(w.Dir, "input"+ext)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write video file: %w", err)
	}
	w.VideoPath = path
	return path, nil
}

// AdoptVideo 复制本地视频到工作目录（CLI 使用，原文件不受清理影响）
func (w *Workspace) AdoptVideo(src string) (string, error) {
	dst := filepath.Join(w.Dir, "input"+strings.ToLower(filepath.Ext(src)))
	if err := CopyFile(src, dst); err != nil {
		return "", err
	}
	w.VideoPath = dst
	return dst, nil
}

// Cleanup 删除视频、每个帧文件、帧目录以及工作目录本身
func (w *Workspace) Cleanup() error {
	var errs []error

	if w.VideoPath != "" {
		if err := os.Remove(w.VideoPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}

	if entries, err := os.ReadDir(w.FramesDir); err == nil {
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(w.FramesDir, e.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := os.Remove(w.FramesDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}

	if err := os.RemoveAll(w.Dir); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		w.logger.Warn().Err(err).Msg("workspace cleanup incomplete")
	} else {
		w.logger.Debug().Msg("workspace removed")
	}
	return err
}
