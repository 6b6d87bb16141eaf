//go:build !onnx
// +build !onnx

package ner

import (
	"go.uber.org/zap"
)

// Stub implementation used when the 'onnx' build tag is not set. The
// service reports the model as unavailable and the pipeline degrades to
// regex+context coverage.
func NewInferenceBackend(logger *zap.Logger, modelPath string, maxLength int) InferenceBackend {
	return nil
}
