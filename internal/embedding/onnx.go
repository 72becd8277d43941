//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kotae/internal/failover"
)

// ONNXProvider runs a local sentence-embedding model with ONNX Runtime. It requires CGO
// and the onnxruntime shared library.
type ONNXProvider struct {
	name       string
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXProvider loads the model at modelPath. InitializeEnvironment is called if not already done.
func NewONNXProvider(name, modelPath string, dimensions, maxTokens int) (*ONNXProvider, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tokenizer := &SimpleTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", maxTokens)
	shape := ort.NewShape(1, int64(len(inputIDs)))

	p := &ONNXProvider{name: name, dimensions: dimensions, maxTokens: len(inputIDs), tokenizer: tokenizer}
	var err error
	if p.inputIDsTensor, err = ort.NewTensor(shape, inputIDs); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if p.attentionMaskTensor, err = ort.NewTensor(shape, attentionMask); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if p.tokenTypeIDsTensor, err = ort.NewTensor(shape, tokenTypeIDs); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if p.outputTensor, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions)); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	p.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{p.inputIDsTensor, p.attentionMaskTensor, p.tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{p.outputTensor},
		nil,
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return p, nil
}

func (p *ONNXProvider) Name() string { return p.name }

func (p *ONNXProvider) Status(context.Context) failover.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return failover.Status{Name: p.name, Detail: "session closed"}
	}
	return failover.Status{Name: p.name, Available: true, Detail: fmt.Sprintf("local, %d dimensions", p.dimensions)}
}

// Embed runs the model once per text. Inference is serialised on the shared tensors.
func (p *ONNXProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, fmt.Errorf("%s: session closed", p.name)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inputIDs, attentionMask, tokenTypeIDs := p.tokenizer.Tokenize(text, p.maxTokens)
		copy(p.inputIDsTensor.GetData(), inputIDs)
		copy(p.attentionMaskTensor.GetData(), attentionMask)
		copy(p.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

		if err := p.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		v := make([]float32, p.dimensions)
		copy(v, p.outputTensor.GetData())
		out[i] = v
	}
	return out, nil
}

// Close destroys the session and tensors.
func (p *ONNXProvider) Close() error {
	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	if p.inputIDsTensor != nil {
		_ = p.inputIDsTensor.Destroy()
	}
	if p.attentionMaskTensor != nil {
		_ = p.attentionMaskTensor.Destroy()
	}
	if p.tokenTypeIDsTensor != nil {
		_ = p.tokenTypeIDsTensor.Destroy()
	}
	if p.outputTensor != nil {
		_ = p.outputTensor.Destroy()
	}
	p.inputIDsTensor, p.attentionMaskTensor, p.tokenTypeIDsTensor, p.outputTensor = nil, nil, nil, nil
	return err
}
