package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"moviemaker/internal/domain"
)

type modelScript struct {
	Title           string       `json:"title"`
	Synopsis        string       `json:"synopsis"`
	StyleNotes      notes        `json:"style_notes"`
	Scenes          []modelScene `json:"scenes"`
	ProductionNotes notes        `json:"production_notes"`
}

type modelScene struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	VisualPrompt string `json:"visual_prompt"`
	Continuity   string `json:"continuity"`
}

// notes accepts either a string or a list of strings.
type notes string

func (n *notes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = notes(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*n = notes(strings.Join(list, "\n"))
	return nil
}

// Parse converts planner output into a Script. It accepts the JSON schema
// requested by BuildPrompt, then the plain-text marker layout, and finally
// degrades to a single scene built from the concept. It never fails.
func Parse(text string, project *domain.Project) *Script {
	if script, err := parseJSON(text); err == nil {
		script.Scenes = normalizeScenes(script.Scenes, project)
		if len(script.Scenes) > 0 {
			script.Text = Render(script)
			return script
		}
	}

	script := parseMarkers(text)
	script.Text = text
	script.Scenes = normalizeScenes(script.Scenes, project)
	if len(script.Scenes) == 0 {
		script.Scenes = []domain.Scene{conceptScene(project)}
	}
	return script
}

func parseJSON(text string) (*Script, error) {
	payload, err := parseModelPayload[modelScript](text)
	if err != nil {
		return nil, err
	}
	if len(payload.Scenes) == 0 {
		return nil, errors.New("no scenes in payload")
	}
	script := &Script{
		Title:           strings.TrimSpace(payload.Title),
		Synopsis:        strings.TrimSpace(payload.Synopsis),
		StyleNotes:      strings.TrimSpace(string(payload.StyleNotes)),
		ProductionNotes: strings.TrimSpace(string(payload.ProductionNotes)),
	}
	for _, s := range payload.Scenes {
		script.Scenes = append(script.Scenes, domain.Scene{
			Title:           s.Title,
			Description:     s.Description,
			VisualPrompt:    s.VisualPrompt,
			ContinuityNotes: s.Continuity,
		})
	}
	return script, nil
}

var sceneHeader = regexp.MustCompile(`(?i)^scene\s+\d+\s*[:.\-]\s*(.*)$`)

type section int

const (
	sectionNone section = iota
	sectionSynopsis
	sectionStyle
	sectionProduction
)

func parseMarkers(text string) *Script {
	script := &Script{}
	var current *domain.Scene
	sec := sectionNone
	var synopsis, style, production []string

	flush := func() {
		if current != nil {
			script.Scenes = append(script.Scenes, *current)
			current = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "TITLE:"):
			script.Title = valueAfter(line, ":")
			sec = sectionNone
			continue
		case strings.HasPrefix(upper, "SYNOPSIS:"):
			sec = sectionSynopsis
			synopsis = appendNonEmpty(synopsis, valueAfter(line, ":"))
			continue
		case strings.HasPrefix(upper, "STYLE NOTES:"):
			sec = sectionStyle
			style = appendNonEmpty(style, valueAfter(line, ":"))
			continue
		case strings.HasPrefix(upper, "PRODUCTION NOTES:"):
			flush()
			sec = sectionProduction
			production = appendNonEmpty(production, valueAfter(line, ":"))
			continue
		case upper == "SCENES:":
			sec = sectionNone
			continue
		}

		if m := sceneHeader.FindStringSubmatch(line); m != nil {
			flush()
			sec = sectionNone
			current = &domain.Scene{Title: strings.TrimSpace(m[1])}
			continue
		}
		if current != nil {
			switch {
			case hasField(line, "Description:"):
				current.Description = valueAfter(line, ":")
				continue
			case hasField(line, "Visual Prompt:"):
				current.VisualPrompt = valueAfter(line, ":")
				continue
			case hasField(line, "Continuity:"):
				current.ContinuityNotes = valueAfter(line, ":")
				continue
			case hasField(line, "Duration:"):
				continue
			}
		}

		switch sec {
		case sectionSynopsis:
			synopsis = append(synopsis, line)
		case sectionStyle:
			style = append(style, line)
		case sectionProduction:
			production = append(production, line)
		}
	}
	flush()

	script.Synopsis = strings.Join(synopsis, " ")
	script.StyleNotes = strings.Join(style, " ")
	script.ProductionNotes = strings.Join(production, "\n")
	return script
}

// normalizeScenes drops empty entries, fills missing fields, truncates to
// max_clips and renumbers ids from 1.
func normalizeScenes(scenes []domain.Scene, project *domain.Project) []domain.Scene {
	out := make([]domain.Scene, 0, len(scenes))
	for _, s := range scenes {
		s.Title = strings.TrimSpace(s.Title)
		s.Description = strings.TrimSpace(s.Description)
		s.VisualPrompt = strings.TrimSpace(s.VisualPrompt)
		s.ContinuityNotes = strings.TrimSpace(s.ContinuityNotes)
		if s.Title == "" && s.Description == "" && s.VisualPrompt == "" {
			continue
		}
		s.VisualPrompt = coalesce(s.VisualPrompt, s.Description, s.Title)
		out = append(out, s)
	}
	limit := project.MaxClips
	if limit < 1 {
		limit = 1
	}
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].ID = i + 1
		if out[i].Title == "" {
			out[i].Title = fmt.Sprintf("Scene %d", i+1)
		}
		out[i].Duration = domain.SceneDuration
		out[i].Status = domain.ScenePending
	}
	return out
}

func conceptScene(project *domain.Project) domain.Scene {
	description := project.Concept
	if runes := []rune(description); len(runes) > 100 {
		description = string(runes[:100]) + "..."
	}
	return domain.Scene{
		ID:              1,
		Title:           "Opening Scene",
		Description:     description,
		VisualPrompt:    fmt.Sprintf("%s style scene showing %s", project.Style, project.Concept),
		ContinuityNotes: "Opening scene",
		Duration:        domain.SceneDuration,
		Status:          domain.ScenePending,
	}
}

// Render writes script in the plain-text marker layout accepted by Parse.
func Render(script *Script) string {
	sb := &strings.Builder{}
	if script.Title != "" {
		fmt.Fprintf(sb, "TITLE: %s\n\n", script.Title)
	}
	if script.Synopsis != "" {
		fmt.Fprintf(sb, "SYNOPSIS:\n%s\n\n", script.Synopsis)
	}
	if script.StyleNotes != "" {
		fmt.Fprintf(sb, "STYLE NOTES:\n%s\n\n", script.StyleNotes)
	}
	sb.WriteString("SCENES:\n")
	for _, s := range script.Scenes {
		fmt.Fprintf(sb, "Scene %d: %s\n", s.ID, s.Title)
		fmt.Fprintf(sb, "Duration: %d seconds\n", domain.SceneDuration)
		fmt.Fprintf(sb, "Description: %s\n", s.Description)
		fmt.Fprintf(sb, "Visual Prompt: %s\n", s.VisualPrompt)
		fmt.Fprintf(sb, "Continuity: %s\n\n", s.ContinuityNotes)
	}
	if script.ProductionNotes != "" {
		fmt.Fprintf(sb, "PRODUCTION NOTES:\n%s\n", script.ProductionNotes)
	}
	return strings.TrimSpace(sb.String())
}

func cleanLine(raw string) string {
	line := strings.TrimSpace(raw)
	line = strings.TrimLeft(line, "#>-• ")
	line = strings.ReplaceAll(line, "**", "")
	return strings.TrimSpace(line)
}

func hasField(line, marker string) bool {
	return len(line) >= len(marker) && strings.EqualFold(line[:len(marker)], marker)
}

func valueAfter(line, sep string) string {
	if idx := strings.Index(line, sep); idx >= 0 {
		return strings.TrimSpace(line[idx+len(sep):])
	}
	return ""
}

func appendNonEmpty(list []string, v string) []string {
	if strings.TrimSpace(v) == "" {
		return list
	}
	return append(list, v)
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
