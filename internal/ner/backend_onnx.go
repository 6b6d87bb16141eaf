//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxBackend implements InferenceBackend using ONNX Runtime (via
// yalue/onnxruntime_go). Requires build tag 'onnx'.
type OnnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	maxLength  int
	logger     *zap.Logger
	ready      bool
	mu         sync.Mutex
}

// NewInferenceBackend initializes the ONNX Runtime backend.
func NewInferenceBackend(logger *zap.Logger, modelPath string, maxLength int) InferenceBackend {
	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	preferredInputs := []string{"input_ids", "attention_mask", "token_type_ids"}
	available := map[string]bool{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range preferredInputs {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) == 0 {
		logger.Error("ONNX model exposes no known transformer inputs", zap.String("model", modelPath))
		return nil
	}
	if len(outputsInfo) == 0 {
		logger.Error("ONNX model exposes no outputs", zap.String("model", modelPath))
		return nil
	}
	outputName := outputsInfo[0].Name

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		logger.Error("failed to create ONNX session", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	logger.Info("ONNX NER backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName))

	return &OnnxBackend{
		session:    session,
		inputNames: inputNames,
		outputName: outputName,
		maxLength:  maxLength,
		logger:     logger,
		ready:      true,
	}
}

// Predict runs token classification and returns the argmax label with its
// softmax score for every token position.
func (b *OnnxBackend) Predict(ctx context.Context, tokens *TokenizedInput) ([]TokenPrediction, error) {
	if !b.IsReady() {
		return nil, ErrModelNotLoaded
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	default:
	}

	seqLen := int64(len(tokens.InputIDs))
	shape := ort.NewShape(1, seqLen)

	var inputs []ort.Value
	for _, name := range b.inputNames {
		var data []int64
		switch name {
		case "input_ids":
			data = tokens.InputIDs
		case "attention_mask":
			data = tokens.AttentionMask
		case "token_type_ids":
			data = make([]int64, seqLen)
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInferenceFailed, name, err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	b.mu.Lock()
	err := b.session.Run(inputs, outputs)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	defer outputs[0].Destroy()

	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output tensor type", ErrInferenceFailed)
	}
	logits := logitsTensor.GetData()

	numLabels := len(Labels)
	if len(logits) < tokens.Length*numLabels {
		return nil, fmt.Errorf("%w: logits too short: %d", ErrInferenceFailed, len(logits))
	}

	predictions := make([]TokenPrediction, tokens.Length)
	for i := 0; i < tokens.Length; i++ {
		row := logits[i*numLabels : (i+1)*numLabels]
		predictions[i] = softmaxArgmax(row)
	}
	return predictions, nil
}

func softmaxArgmax(row []float32) TokenPrediction {
	maxIdx := 0
	maxVal := row[0]
	for i, v := range row {
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxVal))
	}
	return TokenPrediction{LabelIndex: maxIdx, Score: 1.0 / sum}
}

// IsReady returns whether the session is initialized.
func (b *OnnxBackend) IsReady() bool {
	return b != nil && b.ready
}

// Close destroys the ONNX session.
func (b *OnnxBackend) Close() error {
	if b.session != nil {
		b.session.Destroy()
		b.ready = false
	}
	return nil
}
