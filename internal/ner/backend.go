package ner

import "context"

// InferenceBackend is a pluggable token-classification engine.
// Implementations may use ONNX Runtime or other inference engines; the
// default build (no tags) has no backend and the service degrades to
// reporting the model as unavailable.
type InferenceBackend interface {
	// Predict returns one prediction per input token position.
	Predict(ctx context.Context, tokens *TokenizedInput) ([]TokenPrediction, error)
	// IsReady returns whether the backend is initialized and ready.
	IsReady() bool
	// Close releases any native resources.
	Close() error
}

// NewInferenceBackend creates a backend if supported by the current build.
// Implementations live in build-tagged files: backend_onnx.go and
// backend_stub.go.
