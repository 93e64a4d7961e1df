package taxonomy

import (
	"strings"
	"sync"
	"unicode"

	"github.com/gnames/gnparser"
	"github.com/gnames/gnparser/ent/parsed"
)

// NormalizeScientificName canonicalizes a name for matching and cache
// keys: whitespace collapsed, placeholder epithets (sp., spp., cf.,
// aff.) removed, genus capitalized, later epithets lowercased.
func NormalizeScientificName(name string) string {
	fields := strings.Fields(name)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		switch strings.ToLower(strings.TrimSuffix(f, ".")) {
		case "sp", "spp", "cf", "aff":
			continue
		}
		out = append(out, f)
	}
	for i, f := range out {
		if i == 0 {
			out[i] = capitalize(f)
		} else {
			out[i] = strings.ToLower(f)
		}
	}
	return strings.Join(out, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// NameParts is the structured decomposition of a scientific name.
type NameParts struct {
	Canonical  string
	Genus      string
	Species    string
	Subspecies string
	Authorship string
	Quality    int
	Parsed     bool
}

// Parser wraps gnparser for name decomposition. The underlying gnparser
// instance is stateful, so calls are serialized; one Parser can be
// shared across goroutines.
type Parser struct {
	mu  sync.Mutex
	gnp gnparser.GNparser
}

func NewParser() *Parser {
	cfg := gnparser.NewConfig()
	return &Parser{gnp: gnparser.New(cfg)}
}

// Parse decomposes a scientific name. Parenthesized tokens (authorship
// years, subgenus markers) never leak into the epithets.
func (p *Parser) Parse(name string) NameParts {
	p.mu.Lock()
	res := p.gnp.ParseName(name)
	p.mu.Unlock()
	if !res.Parsed {
		return NameParts{}
	}

	parts := NameParts{
		Canonical: res.Canonical.Simple,
		Quality:   res.ParseQuality,
		Parsed:    true,
	}
	if res.Authorship != nil {
		parts.Authorship = res.Authorship.Normalized
	}
	fillEpithets(&parts, res)
	return parts
}

// fillEpithets derives genus/species/subspecies from the canonical
// form, which gnparser has already stripped of annotations.
func fillEpithets(parts *NameParts, res parsed.Parsed) {
	fields := strings.Fields(res.Canonical.Simple)
	if len(fields) > 0 {
		parts.Genus = fields[0]
	}
	if len(fields) > 1 {
		parts.Species = fields[1]
	}
	if len(fields) > 2 {
		parts.Subspecies = fields[2]
	}
}
