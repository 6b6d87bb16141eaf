package scrub

import "sort"

// mergeDetections reconciles the output of all detector passes into one
// canonical detection per entity text. When the same literal text is found
// by more than one method, STATISTICAL overrides CONTEXT overrides REGEX;
// within one method the higher confidence survives. Detections with
// distinct entity text are never merged, even when their spans overlap.
func mergeDetections(all []Detection) map[string]Detection {
	ordered := make([]Detection, len(all))
	copy(ordered, all)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Method.priority() != ordered[j].Method.priority() {
			return ordered[i].Method.priority() < ordered[j].Method.priority()
		}
		return ordered[i].Confidence < ordered[j].Confidence
	})

	winners := make(map[string]Detection)
	for _, d := range ordered {
		winners[d.EntityText] = d // last write wins: highest priority
	}
	return winners
}

// span is a claimed region of the text buffer awaiting replacement.
type span struct {
	start, end int
	text       string
}

// applyReplacements substitutes every occurrence span of each winning
// entity with its placeholder token. Longer entity texts claim their spans
// first, so a short entity that is a substring of a longer one never splits
// it. Replacements are applied at descending offsets over a single buffer,
// which keeps the not-yet-applied offsets valid throughout.
func applyReplacements(text string, all []Detection, winners map[string]Detection, sessionSalt string) (string, map[string]string, int) {
	replacements := make(map[string]string, len(winners))
	for entityText, d := range winners {
		replacements[entityText] = GeneratePlaceholder(sessionSalt, d.EntityType, entityText)
	}

	// Collect candidate spans from every detection whose text won, deduped
	// by position.
	seen := make(map[[2]int]bool)
	var candidates []span
	for _, d := range all {
		if _, ok := winners[d.EntityText]; !ok {
			continue
		}
		key := [2]int{d.StartOffset, d.EndOffset}
		if seen[key] || d.StartOffset < 0 || d.EndOffset > len(text) || d.StartOffset >= d.EndOffset {
			continue
		}
		if text[d.StartOffset:d.EndOffset] != d.EntityText {
			// Stale offset from a detector that ran over a different
			// snapshot; drop rather than corrupt the buffer.
			continue
		}
		seen[key] = true
		candidates = append(candidates, span{d.StartOffset, d.EndOffset, d.EntityText})
	}

	// Longest entity text first, then leftmost, so overlap arbitration is
	// deterministic.
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].text) != len(candidates[j].text) {
			return len(candidates[i].text) > len(candidates[j].text)
		}
		return candidates[i].start < candidates[j].start
	})

	var claimed []span
	for _, c := range candidates {
		conflict := false
		for _, cl := range claimed {
			if c.start < cl.end && c.end > cl.start {
				conflict = true
				break
			}
		}
		if !conflict {
			claimed = append(claimed, c)
		}
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start > claimed[j].start })

	redacted := 0
	out := text
	for _, c := range claimed {
		out = out[:c.start] + replacements[c.text] + out[c.end:]
		redacted += c.end - c.start
	}
	return out, replacements, redacted
}
