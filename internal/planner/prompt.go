package planner

import (
	"fmt"
	"strings"

	"moviemaker/internal/catalog"
	"moviemaker/internal/domain"
)

const scriptSchema = `{"title":string,"synopsis":string,"style_notes":string,"scenes":[{"title":string,"description":string,"visual_prompt":string,"continuity":string}],"production_notes":string}`

// BuildPrompt renders the planning instruction for project.
func BuildPrompt(c *catalog.Catalog, project *domain.Project) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Create a detailed movie script for a %s in %s style.\n\n", project.Preset, project.Style)
	fmt.Fprintf(sb, "Title: %s\n", project.Title)
	fmt.Fprintf(sb, "Concept: %s\n", project.Concept)
	fmt.Fprintf(sb, "Style: %s\n", c.Tone(project.Style))
	fmt.Fprintf(sb, "Guidelines: %s\n", c.Guidance(project.Preset))
	fmt.Fprintf(sb, "Maximum scenes: %d\n\n", project.MaxClips)
	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Create a compelling narrative that flows logically\n")
	fmt.Fprintf(sb, "2. Each scene must be exactly %d seconds long\n", domain.SceneDuration)
	sb.WriteString("3. Include a detailed visual prompt for AI video generation in every scene\n")
	sb.WriteString("4. Write continuity notes describing how each scene connects to the previous and next one\n")
	fmt.Fprintf(sb, "5. Match the %s aesthetic throughout\n", project.Style)
	fmt.Fprintf(sb, "6. Stay within the %s format guidelines and never exceed %d scenes\n\n", project.Preset, project.MaxClips)
	sb.WriteString("Respond strictly with JSON matching this schema: ")
	sb.WriteString(scriptSchema)
	sb.WriteString(". Do not wrap the JSON in markdown.")
	return sb.String()
}
