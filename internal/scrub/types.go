package scrub

import "time"

// EntityType classifies a detected piece of PII.
type EntityType string

const (
	EntityPerson        EntityType = "PERSON"
	EntityLocation      EntityType = "LOCATION"
	EntityOrganization  EntityType = "ORGANIZATION"
	EntityEmail         EntityType = "EMAIL"
	EntityPhone         EntityType = "PHONE"
	EntityNationalID    EntityType = "NATIONAL_ID"
	EntityMedicalRecord EntityType = "MEDICAL_RECORD_NUMBER"
	EntityDate          EntityType = "DATE"
	EntityAddress       EntityType = "ADDRESS"
	EntityCityState     EntityType = "CITY_STATE"
	EntityZip           EntityType = "ZIP"
	EntityCreditCard    EntityType = "CREDIT_CARD"
	EntityPOBox         EntityType = "PO_BOX"
)

// TokenLabel returns the label used inside placeholder tokens.
// PERSON renders as NAME so scrubbed charts read naturally.
func (t EntityType) TokenLabel() string {
	if t == EntityPerson {
		return "NAME"
	}
	return string(t)
}

// Method identifies which detector produced a Detection.
type Method string

const (
	MethodRegex       Method = "REGEX"
	MethodContext     Method = "CONTEXT"
	MethodStatistical Method = "STATISTICAL"
)

// priority returns the merge precedence of a method. Higher wins when the
// same entity text is reported by more than one detector.
func (m Method) priority() int {
	switch m {
	case MethodStatistical:
		return 3
	case MethodContext:
		return 2
	default:
		return 1
	}
}

// Detection is one candidate PII match. Detections are immutable once
// created; offsets always refer to the text snapshot the detector ran over.
type Detection struct {
	EntityText  string     `json:"-"` // never serialized
	EntityType  EntityType `json:"entityType"`
	StartOffset int        `json:"startOffset"`
	EndOffset   int        `json:"endOffset"`
	Confidence  float64    `json:"confidence"`
	Method      Method     `json:"method"`
}

// Replacement records one original-to-placeholder substitution.
// The original is only held for the lifetime of the scrub call.
type Replacement struct {
	Original    string `json:"-"`
	Placeholder string `json:"placeholder"`
}

// AuditEntry records one detector pass over the document.
type AuditEntry struct {
	DetectorName   string        `json:"detectorName"`
	PatternOrLabel string        `json:"patternOrLabel,omitempty"`
	MatchCount     int           `json:"matchCount"`
	Replacements   []Replacement `json:"replacements"`
	Elapsed        time.Duration `json:"elapsedMs"`
}

// Warning is a non-fatal condition surfaced to the caller alongside the
// result, e.g. a degraded statistical pass or a low-confidence entity that
// was left in place for human review.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// WarningKind enumerates recoverable conditions.
type WarningKind string

const (
	WarnModelError    WarningKind = "MODEL_ERROR"
	WarnLowConfidence WarningKind = "LOW_CONFIDENCE"
	WarnStageFailure  WarningKind = "STAGE_FAILURE"
	WarnOutputInvalid WarningKind = "OUTPUT_INVALID"
)

// ScrubResult is the externally visible output of one scrub call.
// Invariant: Count == len(Replacements) == len(Detections).
type ScrubResult struct {
	Text         string            `json:"text"`
	Replacements map[string]string `json:"-"` // entity text -> placeholder, never serialized
	Count        int               `json:"count"`
	Confidence   float64           `json:"confidence"`
	Detections   []Detection       `json:"detections"`
	Warnings     []Warning         `json:"warnings"`
	AuditTrail   []AuditEntry      `json:"auditTrail"`
	Summary      Summary           `json:"summary"`
}

// Summary is the human-readable aggregate computed by the audit engine.
type Summary struct {
	ByCategory     map[EntityType]int `json:"byCategory"`
	RedactedChars  int                `json:"redactedChars"`
	Density        float64            `json:"density"`
	OriginalLength int                `json:"originalLength"`
	Duration       time.Duration      `json:"durationMs"`
}

// scrubState is the per-invocation snapshot threaded through the pipeline.
// Each stage consumes one state and produces a new one; no stage mutates a
// prior stage's snapshot.
type scrubState struct {
	text         string
	detections   []Detection
	replacements map[string]string
	perTypeCount map[EntityType]int
}

func newScrubState(text string) scrubState {
	return scrubState{
		text:         text,
		replacements: make(map[string]string),
		perTypeCount: make(map[EntityType]int),
	}
}

// withDetections returns a copy of the state with detections appended.
func (s scrubState) withDetections(ds []Detection) scrubState {
	next := s
	next.detections = make([]Detection, 0, len(s.detections)+len(ds))
	next.detections = append(next.detections, s.detections...)
	next.detections = append(next.detections, ds...)
	return next
}
