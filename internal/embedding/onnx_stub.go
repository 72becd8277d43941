//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/failover"
)

var errNoCGO = errors.New("ONNX provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXProvider stub type when built without CGO (see onnx.go for real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO.
func NewONNXProvider(_, _ string, _, _ int) (*ONNXProvider, error) {
	return nil, errNoCGO
}

func (p *ONNXProvider) Name() string { return "onnx" }

func (p *ONNXProvider) Status(context.Context) failover.Status {
	return failover.Status{Name: "onnx", Detail: errNoCGO.Error()}
}

func (p *ONNXProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errNoCGO
}

func (p *ONNXProvider) Close() error { return nil }
