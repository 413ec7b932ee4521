package processors

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MockClient 本地开发用的确定性客户端，不访问网络
type MockClient struct {
	calls atomic.Int64
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// Calls 已处理的调用次数
func (m *MockClient) Calls() int64 { return m.calls.Load() }

func (m *MockClient) Invoke(ctx context.Context, model string, input Input) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	n := m.calls.Add(1)

	switch input.Task() {
	case taskImageToImage:
		return URLOutput(fmt.Sprintf("https://mock.invalid/pose/%d.png", n)), nil
	case taskVision:
		return TextOutput("[Mock] The rider holds a centered stance with knees flexed, shoulders roughly aligned with the board, and weight slightly on the front foot."), nil
	default:
		// token 形式，模拟服务商的分词输出
		return TokenOutput("[Mock]", "Solid", "fundamentals", "with", "a", "stable", "stance.", "Focus", "on", "earlier", "edge", "engagement", "and", "a", "quieter", "upper", "body."), nil
	}
}
