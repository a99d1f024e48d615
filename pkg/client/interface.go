package client

import (
	"context"

	"github.com/menta2k/circle-snip/pkg/types"
)

// VisionClient is a vision-capable chat model backend. Images are base64 PNG.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DescribeImage(ctx context.Context, model, prompt, imgB64 string) (*types.Caption, error)
}
