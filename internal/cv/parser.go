package cv

import (
	"regexp"
	"strings"
)

// NoAnimalsSentinel is the model's literal answer when nothing is
// identifiable.
const NoAnimalsSentinel = "NO ANIMALS FOUND"

// binomialPattern matches `Genus, species` with an optional subspecies
// epithet and optional parenthesized common name.
var binomialPattern = regexp.MustCompile(`^([A-Z][a-z]+)[,\s]+([a-z]+)(?:\s+([a-z]+))?\s*(?:\(([^)]+)\))?`)

// Detection is one parsed animal from a model response.
type Detection struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Confidence     float64 `json:"confidence"`
}

// stripMarkdown removes the emphasis markers models like to wrap names in.
func stripMarkdown(s string) string {
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "_", "")
	return strings.TrimSpace(s)
}

// ParseResponse turns the raw model prediction into detections. Entries
// are separated by "|". The confidence is positional: the model lists
// its most certain identification first, so entry i gets
// max(0, 0.9 - 0.1*i). Entries that do not match the binomial pattern
// are returned in dropped so the caller can log them.
func ParseResponse(raw string) (detections []Detection, dropped []string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, nil
	}
	if strings.EqualFold(stripMarkdown(text), NoAnimalsSentinel) {
		return nil, nil
	}

	for _, part := range strings.Split(text, "|") {
		entry := stripMarkdown(part)
		if entry == "" {
			continue
		}
		if strings.EqualFold(entry, NoAnimalsSentinel) {
			continue
		}
		m := binomialPattern.FindStringSubmatch(entry)
		if m == nil {
			dropped = append(dropped, entry)
			continue
		}

		genus, species, subspecies, common := m[1], m[2], m[3], m[4]
		name := genus + " " + species
		if subspecies != "" {
			name += " " + subspecies
		}

		confidence := 0.9 - 0.1*float64(len(detections))
		if confidence < 0 {
			confidence = 0
		}
		detections = append(detections, Detection{
			ScientificName: name,
			CommonName:     strings.TrimSpace(common),
			Confidence:     confidence,
		})
	}
	return detections, dropped
}
