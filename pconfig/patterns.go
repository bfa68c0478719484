package pconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowmind-ai/pipeline/intent"
)

// patternMetadataSpec is the on-disk shape of one category's metadata
// (spec.md §4.2's tone/deepLink/requiresAuth table).
type patternMetadataSpec struct {
	Tone         string `yaml:"tone,omitempty"`
	DeepLink     string `yaml:"deepLink,omitempty"`
	RequiresAuth bool   `yaml:"requiresAuth,omitempty"`
}

// patternSpec is one YAML category entry.
type patternSpec struct {
	Category string                `yaml:"category"`
	Keywords []string              `yaml:"keywords"`
	Metadata *patternMetadataSpec  `yaml:"metadata,omitempty"`
}

// patternsDocument is the full on-disk patterns file.
type patternsDocument struct {
	Patterns []patternSpec `yaml:"patterns"`
}

// LoadPatterns reads a keyword-classifier configuration from path,
// returning the ordered pattern list plus the per-category metadata
// table NewKeywordClassifier takes.
func LoadPatterns(path string) ([]intent.Pattern, map[string]intent.Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("pconfig: read patterns %q: %w", path, err)
	}

	var doc patternsDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("pconfig: parse patterns %q: %w", path, err)
	}

	patterns := make([]intent.Pattern, 0, len(doc.Patterns))
	metadata := make(map[string]intent.Metadata)
	for _, p := range doc.Patterns {
		patterns = append(patterns, intent.Pattern{Category: p.Category, Keywords: p.Keywords})
		if p.Metadata != nil {
			metadata[p.Category] = intent.Metadata{
				Tone:         p.Metadata.Tone,
				DeepLink:     p.Metadata.DeepLink,
				RequiresAuth: p.Metadata.RequiresAuth,
			}
		}
	}
	return patterns, metadata, nil
}

// toneMapDocument is the on-disk shape of a tone instruction map.
type toneMapDocument struct {
	Tones map[string]string `yaml:"tones"`
}

// LoadToneMap reads a tone → instruction-text map from path.
func LoadToneMap(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pconfig: read tone map %q: %w", path, err)
	}

	var doc toneMapDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("pconfig: parse tone map %q: %w", path, err)
	}
	return doc.Tones, nil
}
