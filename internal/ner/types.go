package ner

import (
	"time"
)

// ModelConfig contains NER model configuration.
type ModelConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	ModelName    string        `yaml:"model_name" mapstructure:"model_name"`         // "dslim/bert-base-NER"
	ModelPath    string        `yaml:"model_path" mapstructure:"model_path"`         // "./models/bert-ner.onnx"
	VocabPath    string        `yaml:"vocab_path" mapstructure:"vocab_path"`         // "./models/vocab.txt"
	MaxLength    int           `yaml:"max_length" mapstructure:"max_length"`         // 512
	ModelTimeout time.Duration `yaml:"model_timeout" mapstructure:"model_timeout"`   // 30s
	CacheEnabled bool          `yaml:"cache_enabled" mapstructure:"cache_enabled"`   // true
}

// ModelStats tracks oracle performance.
type ModelStats struct {
	TotalInferences   int64         `json:"total_inferences"`
	SuccessfulRuns    int64         `json:"successful_runs"`
	FailedRuns        int64         `json:"failed_runs"`
	CacheHits         int64         `json:"cache_hits"`
	AvgInferenceTime  time.Duration `json:"avg_inference_time"`
	ModelLoadTime     time.Duration `json:"model_load_time"`
	LastInferenceTime time.Time     `json:"last_inference_time"`
	ErrorRate         float64       `json:"error_rate"`
}

// NERError is a typed error produced by the oracle integration.
type NERError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *NERError) Error() string {
	return e.Message
}

// Common error values.
var (
	ErrModelNotLoaded     = &NERError{Type: "model_not_loaded", Message: "NER model not loaded", Code: 3001}
	ErrInferenceFailed    = &NERError{Type: "inference_failed", Message: "NER inference failed", Code: 3002}
	ErrTokenizationFailed = &NERError{Type: "tokenization_failed", Message: "tokenization failed", Code: 3003}
	ErrTimeout            = &NERError{Type: "timeout", Message: "NER inference timed out", Code: 3004}
	ErrInvalidInput       = &NERError{Type: "invalid_input", Message: "invalid input text", Code: 3005}
)

// Labels is the fixed BIO tag set the model emits, in output index order.
var Labels = []string{"O", "B-PER", "I-PER", "B-LOC", "I-LOC", "B-ORG", "I-ORG"}

// TokenizedInput is tokenized text ready for model inference. TokenSpans
// maps each token back to its byte span in the original text so decoded
// entities carry exact offsets.
type TokenizedInput struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenSpans    [][2]int
	Length        int
	Truncated     bool
}

// TokenPrediction is one token's decoded label and softmax score.
type TokenPrediction struct {
	LabelIndex int
	Score      float64
}
