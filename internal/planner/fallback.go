package planner

import (
	"fmt"
	"strings"

	"moviemaker/internal/catalog"
	"moviemaker/internal/domain"
)

type beat struct {
	title      string
	action     string
	shot       string
	continuity string
}

var fallbackBeats = []beat{
	{
		title:      "Opening",
		action:     "The world of the story is introduced",
		shot:       "wide establishing shot, slow push in, soft morning light",
		continuity: "Opening scene that establishes setting, palette and main character",
	},
	{
		title:      "The Journey Begins",
		action:     "The main character sets out and the central idea takes shape",
		shot:       "tracking shot following the main character, medium framing",
		continuity: "Continues directly from the establishing shot with the same lighting",
	},
	{
		title:      "Rising Tension",
		action:     "An obstacle appears and the stakes become clear",
		shot:       "dynamic handheld camera, tighter framing, contrasting shadows",
		continuity: "Picks up the motion from the previous scene and darkens the palette",
	},
	{
		title:      "The Turning Point",
		action:     "The main character faces the obstacle and something changes",
		shot:       "dramatic low angle, slow motion accent, strong backlight",
		continuity: "Resolves the tension built in the previous scene",
	},
	{
		title:      "Resolution",
		action:     "The story settles into its new balance",
		shot:       "pull back to a wide shot, warm light, calm camera",
		continuity: "Mirrors the opening composition to close the story",
	},
}

// fallbackScript renders a deterministic five-beat script from the concept
// and style. It is used whenever the text model is unavailable.
func fallbackScript(c *catalog.Catalog, project *domain.Project) string {
	tone := c.Tone(project.Style)
	concept := strings.Join(strings.Fields(project.Concept), " ")
	title := strings.TrimSpace(project.Title)
	if title == "" {
		title = "Untitled"
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "TITLE: %s\n\n", title)
	fmt.Fprintf(sb, "SYNOPSIS:\n%s\n\n", concept)
	fmt.Fprintf(sb, "STYLE NOTES:\n%s style with %s. Consistent colors and characters across all scenes.\n\n", project.Style, tone)
	sb.WriteString("SCENES:\n")
	for i, b := range fallbackBeats {
		fmt.Fprintf(sb, "Scene %d: %s\n", i+1, b.title)
		fmt.Fprintf(sb, "Duration: %d seconds\n", domain.SceneDuration)
		fmt.Fprintf(sb, "Description: %s. %s\n", b.action, concept)
		fmt.Fprintf(sb, "Visual Prompt: %s style, %s, %s: %s\n", project.Style, tone, b.shot, concept)
		fmt.Fprintf(sb, "Continuity: %s\n\n", b.continuity)
	}
	sb.WriteString("PRODUCTION NOTES:\n")
	fmt.Fprintf(sb, "Keep every scene at %d seconds and preserve the %s look between clips.\n", domain.SceneDuration, project.Style)
	return sb.String()
}
