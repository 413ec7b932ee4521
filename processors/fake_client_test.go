package processors

import (
	"context"
	"fmt"
	"sync"

	"snowboardCoach/config"
	"snowboardCoach/core"
)

var testModels = config.ModelConfig{
	Pose:   "test/pose",
	Vision: "test/vision",
	Text:   "test/text",
}

type recordedCall struct {
	model string
	input Input
}

// fakeClient 按调用内容返回预设结果并记录调用
type fakeClient struct {
	mu    sync.Mutex
	calls []recordedCall
	fn    func(model string, in Input) (Output, error)
}

func (f *fakeClient) Invoke(ctx context.Context, model string, in Input) (Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{model: model, input: in})
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	return f.fn(model, in)
}

func (f *fakeClient) callsTo(model string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.model == model {
			out = append(out, c)
		}
	}
	return out
}

func testFrames(n int) []core.Frame {
	frames := make([]core.Frame, n)
	for i := range frames {
		frames[i] = core.Frame{
			Index:    i + 1,
			Path:     fmt.Sprintf("frames/frame_%02d.jpg", i+1),
			Data:     []byte{byte(i)},
			Encoding: "image/jpeg",
		}
	}
	return frames
}
