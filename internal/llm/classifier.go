package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultResearchAreas are the applied research areas publications are
// labelled with. Each one names a ScienceKeyword node.
var DefaultResearchAreas = []string{
	"AGRICULTURE",
	"AIR QUALITY",
	"ATMOSPHERIC/OCEAN INDICATORS",
	"CRYOSPHERIC INDICATORS",
	"DROUGHTS",
	"EARTHQUAKES",
	"ECOSYSTEMS",
	"ENERGY PRODUCTION/USE",
	"ENVIRONMENTAL IMPACTS",
	"FLOODS",
	"GREENHOUSE GASES",
	"HABITAT CONVERSION/FRAGMENTATION",
	"HEAT",
	"LAND SURFACE/AGRICULTURE INDICATORS",
	"PUBLIC HEALTH",
	"SEVERE STORMS",
	"SUN-EARTH INTERACTIONS",
	"VALIDATION",
	"VOLCANIC ERUPTIONS",
	"WATER QUALITY",
	"WILDFIRES",
}

var ErrUnrecognizedLabel = errors.New("reply names no known label")

const maxPromptText = 4000

const classifyPrompt = `You are classifying scientific publications by applied research area.

Areas:
%s
Abstract:
%s

Answer with the index of the single best matching area.
Output ONLY the number. Do not output any other text.`

// PromptClassifier asks an LLM to pick one of Labels for a text.
type PromptClassifier struct {
	LLM    LLMClient
	Labels []string
}

func NewPromptClassifier(client LLMClient, labels []string) *PromptClassifier {
	if len(labels) == 0 {
		labels = DefaultResearchAreas
	}
	return &PromptClassifier{LLM: client, Labels: labels}
}

// Close releases the underlying client when it holds resources, as the
// Gemini client does.
func (c *PromptClassifier) Close() error {
	if closer, ok := c.LLM.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *PromptClassifier) Predict(ctx context.Context, text string) (string, error) {
	text = clip(text, maxPromptText)
	var list strings.Builder
	for i, l := range c.Labels {
		fmt.Fprintf(&list, "[%d] %s\n", i, l)
	}

	resp, err := c.LLM.Generate(ctx, fmt.Sprintf(classifyPrompt, list.String(), text))
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	label, ok := Normalize(resp, c.Labels)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedLabel, truncate(resp, 80))
	}
	return label, nil
}

var indexPattern = regexp.MustCompile(`\d+`)

// Normalize maps a model reply onto one of labels. A bare index wins; else
// an exact case-insensitive name; else the longest label the reply contains.
func Normalize(reply string, labels []string) (string, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", false
	}
	if m := indexPattern.FindString(reply); m != "" && strings.TrimSpace(strings.Trim(reply, "[]().")) == m {
		if i, err := strconv.Atoi(m); err == nil && i >= 0 && i < len(labels) {
			return labels[i], true
		}
	}
	clean := strings.Trim(reply, " \t\n\"'`.")
	for _, l := range labels {
		if strings.EqualFold(clean, l) {
			return l, true
		}
	}
	upper := strings.ToUpper(reply)
	best := ""
	for _, l := range labels {
		if strings.Contains(upper, strings.ToUpper(l)) && len(l) > len(best) {
			best = l
		}
	}
	return best, best != ""
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return clip(s, n) + "..."
}
