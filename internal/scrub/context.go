package scrub

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// labelFamily binds a set of label keywords to a narrow value pattern that
// is applied to the text immediately following a matched label. Only the
// value span becomes a detection; the label itself is preserved.
type labelFamily struct {
	name       string
	entityType EntityType
	labels     []string
	valueRe    *regexp.Regexp // group 1 is the value span
	confidence float64
	needsDigit bool
}

func defaultLabelFamilies() []labelFamily {
	return []labelFamily{
		{
			name:       "person_name",
			entityType: EntityPerson,
			labels: []string{
				"Patient Name", "Attending Physician", "Referring Physician",
				"Emergency Contact", "Next of Kin", "Attending", "Physician",
				"Provider", "Guarantor", "Guardian", "Spouse", "Patient", "Name",
			},
			valueRe:    regexp.MustCompile(`^(?:(?:Dr|Mr|Mrs|Ms)\.?\s+)?([A-Z][a-z]{1,20}(?:\s+(?:[A-Z]\.\s+)?[A-Z][a-z]{1,20}){0,2})`),
			confidence: 0.92,
		},
		{
			name:       "medical_record_number",
			entityType: EntityMedicalRecord,
			labels: []string{
				"Medical Record Number", "Medical Record", "Chart Number",
				"Record Number", "Account Number", "Patient ID", "Chart",
				"MRN", "Acct",
			},
			valueRe:    regexp.MustCompile(`^([A-Z0-9][A-Z0-9\-]{3,15})`),
			confidence: 0.90,
			needsDigit: true,
		},
		{
			name:       "date_of_birth",
			entityType: EntityDate,
			labels:     []string{"Date of Birth", "Birth Date", "DOB"},
			valueRe:    regexp.MustCompile(`^(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
			confidence: 0.92,
		},
	}
}

// ContextDetector finds PII that is syntactically generic but anchored by a
// fixed surrounding label ("MRN: 847-291", "Patient Name: John Smith").
type ContextDetector struct {
	families []compiledFamily
	logger   *zap.Logger
}

type compiledFamily struct {
	labelFamily
	labelRe *regexp.Regexp
}

// NewContext compiles the default label families. Labels are joined
// longest-first so a short label never pre-empts a longer one.
func NewContext(logger *zap.Logger) *ContextDetector {
	families := defaultLabelFamilies()
	compiled := make([]compiledFamily, 0, len(families))
	for _, f := range families {
		labels := make([]string, len(f.labels))
		copy(labels, f.labels)
		sort.Slice(labels, func(i, j int) bool { return len(labels[i]) > len(labels[j]) })
		quoted := make([]string, len(labels))
		for i, l := range labels {
			quoted[i] = regexp.QuoteMeta(l)
		}
		compiled = append(compiled, compiledFamily{
			labelFamily: f,
			labelRe:     regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\s*[:#][ \t]*`),
		})
	}
	return &ContextDetector{families: compiled, logger: logger}
}

// Detect returns CONTEXT detections for all label-anchored values in text.
// Values that already carry a placeholder token are skipped, so running the
// detector over previously scrubbed text is a no-op.
func (d *ContextDetector) Detect(text string) []Detection {
	skip := placeholderSpans(text)
	var detections []Detection

	for _, f := range d.families {
		for _, loc := range f.labelRe.FindAllStringIndex(text, -1) {
			rest := text[loc[1]:]
			m := f.valueRe.FindStringSubmatchIndex(rest)
			if m == nil {
				continue
			}
			start := loc[1] + m[2]
			end := loc[1] + m[3]
			value := text[start:end]
			if f.needsDigit && !strings.ContainsAny(value, "0123456789") {
				continue
			}
			if overlapsAny(start, end, skip) || placeholderRe.MatchString(value) {
				continue
			}
			detections = append(detections, Detection{
				EntityText:  value,
				EntityType:  f.entityType,
				StartOffset: start,
				EndOffset:   end,
				Confidence:  f.confidence,
				Method:      MethodContext,
			})
		}
	}

	d.logger.Debug("context pass complete", zap.Int("detections", len(detections)))
	return detections
}
