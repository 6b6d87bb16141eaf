package scrub

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// PatternRule is a single structural PII detection rule.
type PatternRule struct {
	Name       string
	EntityType EntityType
	Pattern    *regexp.Regexp
	Confidence float64
}

// placeholderRe matches tokens this engine has already emitted, so a second
// pass over scrubbed text never re-detects its own output.
var placeholderRe = regexp.MustCompile(`\[[A-Z][A-Z_]{1,30}_[0-9a-f]{8}\]`)

// DefaultRules returns the built-in structural pattern table. All patterns
// use bounded quantifiers; Go's RE2 engine is linear-time, so crafted input
// cannot trigger catastrophic backtracking.
func DefaultRules() []PatternRule {
	return []PatternRule{
		{
			Name:       "email",
			EntityType: EntityEmail,
			Pattern:    regexp.MustCompile(`\b[A-Za-z0-9._%+\-]{1,64}@[A-Za-z0-9.\-]{1,253}\.[A-Za-z]{2,24}\b`),
			Confidence: 0.98,
		},
		{
			Name:       "national_id",
			EntityType: EntityNationalID,
			Pattern:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Confidence: 0.99,
		},
		{
			Name:       "credit_card",
			EntityType: EntityCreditCard,
			Pattern:    regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
			Confidence: 0.97,
		},
		{
			Name:       "phone",
			EntityType: EntityPhone,
			Pattern:    regexp.MustCompile(`\b(?:\+1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]\d{4}\b`),
			Confidence: 0.95,
		},
		{
			Name:       "zip",
			EntityType: EntityZip,
			Pattern:    regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`),
			Confidence: 0.96,
		},
		{
			// Dates are inherently ambiguous; lowest structural confidence
			// short of city/state pairs.
			Name:       "date",
			EntityType: EntityDate,
			Pattern: regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}` +
				`|\d{4}-\d{2}-\d{2}` +
				`|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]{0,7}\.?\s+\d{1,2}(?:,\s*\d{4})?)\b`),
			Confidence: 0.85,
		},
		{
			Name:       "street_address",
			EntityType: EntityAddress,
			Pattern: regexp.MustCompile(`\b\d{1,6}\s+[A-Z][A-Za-z]{1,20}(?:\s+[A-Z][A-Za-z]{1,20}){0,3}\s+` +
				`(?:Street|St|Avenue|Ave|Boulevard|Blvd|Drive|Dr|Lane|Ln|Road|Rd|Court|Ct|Circle|Cir|Way|Place|Pl|Terrace|Ter)\b\.?`),
			Confidence: 0.88,
		},
		{
			// Most false-positive-prone family: "Springfield, IL" style.
			Name:       "city_state",
			EntityType: EntityCityState,
			Pattern:    regexp.MustCompile(`\b[A-Z][a-z]{1,20}(?:\s[A-Z][a-z]{1,20}){0,2},\s?[A-Z]{2}\b`),
			Confidence: 0.75,
		},
		{
			Name:       "po_box",
			EntityType: EntityPOBox,
			Pattern:    regexp.MustCompile(`(?i)\bP\.?\s?O\.?\s?Box\s+\d{1,8}\b`),
			Confidence: 0.94,
		},
	}
}

// allCapsRe feeds the candidate-name heuristic. Tokens on the whitelist
// (clinical and temporal vocabulary) are never treated as names.
var allCapsRe = regexp.MustCompile(`\b[A-Z]{2,12}\b`)

const capsNameConfidence = 0.70

// defaultWhitelist covers clinical acronyms, temporal terms, record-label
// keywords and US state abbreviations that must never be redacted.
var defaultWhitelist = buildWhitelist(
	// Clinical acronyms
	"MRI", "CT", "ICU", "ER", "ED", "OR", "IV", "BP", "HR", "RR", "O2",
	"COPD", "CHF", "CAD", "DM", "HTN", "CBC", "BMP", "CMP", "EKG", "ECG",
	"EEG", "PRN", "BID", "TID", "QID", "PO", "IM", "NPO", "DNR", "CPR",
	"STAT", "WBC", "RBC", "HGB", "PLT", "BUN", "GFR", "AST", "ALT", "INR",
	"PTT", "TSH", "HIV", "UTI", "URI", "GI", "GU", "ENT", "PT", "OT",
	"RN", "MD", "DO", "PA", "NP", "SOB", "CP", "LOC", "ROM", "WNL", "NAD",
	"HEENT", "CV", "ABG", "CXR", "PET", "DVT", "PE", "MI", "CVA", "TIA",
	"ARDS", "AKI", "CKD", "ESRD", "GERD", "IBS", "RA", "SLE", "MS", "ALS",
	"ADHD", "PTSD", "OCD", "NSAID", "ACE", "ARB", "SSRI", "TPN", "NG", "ETT",
	// Temporal terms
	"JANUARY", "FEBRUARY", "MARCH", "APRIL", "MAY", "JUNE", "JULY", "AUGUST",
	"SEPTEMBER", "OCTOBER", "NOVEMBER", "DECEMBER",
	"JAN", "FEB", "MAR", "APR", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
	"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY",
	"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN", "AM", "PM",
	// Record-label keywords (matched by the context detector, not names)
	"SSN", "MRN", "DOB", "DOD", "ID",
	// US state abbreviations (claimed by the city_state family instead)
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA", "HI", "IA",
	"IL", "IN", "KS", "KY", "LA", "MA", "MD", "ME", "MI", "MN", "MO", "MT",
	"NC", "ND", "NE", "NH", "NJ", "NM", "NV", "NY", "OH", "OK", "PA", "RI",
	"SC", "SD", "TN", "TX", "UT", "VA", "VT", "WA", "WI", "WV", "WY", "DC",
)

func buildWhitelist(terms ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// StructuralDetector runs the regex pattern table over raw text. It is a
// pure function of the input and its tables, safe for concurrent use.
type StructuralDetector struct {
	rules     []PatternRule
	whitelist map[string]struct{}
	logger    *zap.Logger
}

// NewStructural creates a structural detector with the default rule table.
func NewStructural(logger *zap.Logger) *StructuralDetector {
	return &StructuralDetector{
		rules:     DefaultRules(),
		whitelist: defaultWhitelist,
		logger:    logger,
	}
}

// Whitelisted reports whether a token is protected domain vocabulary.
func (d *StructuralDetector) Whitelisted(token string) bool {
	_, ok := d.whitelist[strings.ToUpper(token)]
	return ok
}

// Detect returns all structural matches in text as REGEX detections.
func (d *StructuralDetector) Detect(text string) []Detection {
	skip := placeholderSpans(text)
	var detections []Detection

	for _, rule := range d.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			match := strings.TrimRight(text[start:end], " .\n")
			end = start + len(match)
			if match == "" || overlapsAny(start, end, skip) {
				continue
			}
			detections = append(detections, Detection{
				EntityText:  match,
				EntityType:  rule.EntityType,
				StartOffset: start,
				EndOffset:   end,
				Confidence:  rule.Confidence,
				Method:      MethodRegex,
			})
		}
	}

	detections = append(detections, d.detectCapsNames(text, skip)...)

	d.logger.Debug("structural pass complete",
		zap.Int("detections", len(detections)),
		zap.Int("rules", len(d.rules)))

	return detections
}

// detectCapsNames applies the single-token ALL-CAPS heuristic, filtered
// through the whitelist so clinical vocabulary survives.
func (d *StructuralDetector) detectCapsNames(text string, skip [][2]int) []Detection {
	var detections []Detection
	for _, loc := range allCapsRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		token := text[start:end]
		if _, ok := d.whitelist[token]; ok {
			continue
		}
		if overlapsAny(start, end, skip) {
			continue
		}
		detections = append(detections, Detection{
			EntityText:  token,
			EntityType:  EntityPerson,
			StartOffset: start,
			EndOffset:   end,
			Confidence:  capsNameConfidence,
			Method:      MethodRegex,
		})
	}
	return detections
}

// placeholderSpans returns the spans of tokens emitted by a previous scrub
// pass, which all detectors must leave untouched.
func placeholderSpans(text string) [][2]int {
	locs := placeholderRe.FindAllStringIndex(text, -1)
	spans := make([][2]int, len(locs))
	for i, loc := range locs {
		spans[i] = [2]int{loc[0], loc[1]}
	}
	return spans
}

func overlapsAny(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}
