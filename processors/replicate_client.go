package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/replicate/replicate-go"
)

// defaultPollInterval 轮询预测状态的间隔
const defaultPollInterval = time.Second

// ReplicateClient 基于 replicate-go 的推理客户端
type ReplicateClient struct {
	r8           *replicate.Client
	pollInterval time.Duration
}

// NewReplicateClient token 为空时返回 ErrMissingToken
func NewReplicateClient(token string, opts ...replicate.ClientOption) (*ReplicateClient, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	r8, err := replicate.NewClient(append([]replicate.ClientOption{replicate.WithToken(token)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create replicate client: %w", err)
	}
	return &ReplicateClient{r8: r8, pollInterval: defaultPollInterval}, nil
}

// Invoke 阻塞直到预测完成
// owner/name 走官方模型端点，owner/name:version 走版本端点
func (c *ReplicateClient) Invoke(ctx context.Context, model string, input Input) (Output, error) {
	id, err := replicate.ParseIdentifier(model)
	if err != nil {
		return Output{}, fmt.Errorf("replicate %s: %w", model, err)
	}

	payload := replicate.PredictionInput(input.Public())
	var pred *replicate.Prediction
	if id.Version == nil {
		pred, err = c.r8.CreatePredictionWithModel(ctx, id.Owner, id.Name, payload, nil, false)
	} else {
		pred, err = c.r8.CreatePrediction(ctx, *id.Version, payload, nil, false)
	}
	if err != nil {
		return Output{}, fmt.Errorf("replicate %s: %w", model, err)
	}

	if !pred.Status.Terminated() {
		if err := c.r8.Wait(ctx, pred, replicate.WithPollingInterval(c.pollInterval)); err != nil {
			return Output{}, fmt.Errorf("replicate %s: wait %s: %w", model, pred.ID, err)
		}
	}
	if pred.Status != replicate.Succeeded {
		return Output{}, fmt.Errorf("replicate %s: prediction %s %s: %v", model, pred.ID, pred.Status, pred.Error)
	}
	return DecodeOutput(any(pred.Output))
}
