package client

import (
	"context"

	"github.com/menta2k/watermarker/pkg/types"
)

// VisionClient is the contract shared by the remote vision backends used
// for automatic watermark placement.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
