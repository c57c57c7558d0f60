package client

import (
	"context"
)

// VisionClient sends one prompt plus one base64 image to a vision model
type VisionClient interface {
	// SimpleQuery returns the model's free-form text answer
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// QueryJSON returns the model's answer reduced to its outermost JSON object
	QueryJSON(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
