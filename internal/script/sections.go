package script

import (
	"fmt"
	"strconv"
	"strings"
)

// Section is one labelled block of a script breakdown.
type Section struct {
	Number string
	Title  string
	Body   string
}

// FileName is the on-disk name for the section body.
func (s Section) FileName() string {
	return fmt.Sprintf("section_%s.txt", s.Number)
}

// OutlineEntry describes one section of the slide deck.
type OutlineEntry struct {
	Title  string `yaml:"title"`
	Slides int    `yaml:"slides"`
}

// DefaultOutline is the twelve slide lecture layout.
var DefaultOutline = []OutlineEntry{
	{Title: "Introduction and Recurrent Neural Networks (RNNs)", Slides: 3},
	{Title: "Long Short-Term Memory Networks (LSTMs) and Gated Recurrent Units (GRUs)", Slides: 3},
	{Title: "Attention Mechanisms and Applications (Sports, Medical, Autonomous Driving)", Slides: 4},
	{Title: "Transformers and Conclusion", Slides: 2},
}

// ParseSections splits a breakdown response on "Section " labels. The header
// line runs up to the first newline; the number is the header text before ':'
// and must be a positive integer. Blocks without a body or a usable number are
// returned in skipped so the caller can warn.
func ParseSections(response string) (sections []Section, skipped []string) {
	parts := strings.Split(response, "Section ")
	if len(parts) < 2 {
		return nil, nil
	}
	for _, part := range parts[1:] {
		header, body, ok := strings.Cut(part, "\n")
		if !ok {
			skipped = append(skipped, part)
			continue
		}
		header = strings.TrimSpace(header)
		number, title, _ := strings.Cut(header, ":")
		n, err := strconv.Atoi(strings.TrimSpace(number))
		if err != nil || n <= 0 {
			skipped = append(skipped, part)
			continue
		}
		sections = append(sections, Section{
			Number: strconv.Itoa(n),
			Title:  strings.TrimSpace(title),
			Body:   strings.TrimSpace(body),
		})
	}
	return sections, skipped
}

// BreakdownPrompt asks the model to split script into the outlined sections.
func BreakdownPrompt(script string, outline []OutlineEntry) string {
	if len(outline) == 0 {
		outline = DefaultOutline
	}
	total := 0
	var sb strings.Builder
	for i, entry := range outline {
		total += entry.Slides
		noun := "slides"
		if entry.Slides == 1 {
			noun = "slide"
		}
		fmt.Fprintf(&sb, "- Section %d: %s - %d %s\n", i+1, entry.Title, entry.Slides, noun)
	}

	return fmt.Sprintf(`I have a presentation script that I want to break down into %d sections to create a %d-slide presentation. The sections should be as follows:

%s
Here is the script:

%s

Please break down the script into these %d sections. For each section, provide the relevant text and include any visual cues (e.g., illustrations, diagrams, equations, animations) mentioned in the script. Label each section clearly (e.g., "Section 1: %s"). Output the sections in a format that I can use as prompts for a slide designer.
`, len(outline), total, sb.String(), script, len(outline), outline[0].Title)
}
