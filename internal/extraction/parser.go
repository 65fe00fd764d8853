package extraction

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// entityFrontmatter is the YAML header of an entity document.
type entityFrontmatter struct {
	Kind        string   `yaml:"kind"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Domain      string   `yaml:"domain"`
	Tags        []string `yaml:"tags"`
}

// attribute is one row of the "## Attributes" table.
type attribute struct {
	Name            string
	Type            string
	Description     string
	IsReference     bool
	ReferenceEntity string
}

// state is one item of the "## States" list.
type state struct {
	Name        string
	Description string
}

// relation is one item of the "## Relations" list.
type relation struct {
	TargetEntity string
	Name         string
	Cardinality  string
}

// entityInfo is the parsed semantic content of an entity document.
type entityInfo struct {
	Name           string
	Description    string
	Attributes     []attribute
	States         []state
	Relations      []relation
	EventsEmitted  []string
	EventsConsumed []string
}

// isEntityDocument reports whether the document declares itself an
// entity definition via frontmatter or metadata.
func isEntityDocument(doc *domain.Document) bool {
	if kind, ok := doc.Metadata["kind"].(string); ok && kind == "entity" {
		return true
	}
	fm, _ := splitFrontmatter(doc.Content)
	var header entityFrontmatter
	if err := yaml.Unmarshal([]byte(fm), &header); err != nil {
		return false
	}
	return header.Kind == "entity"
}

// splitFrontmatter separates a YAML frontmatter block from the body.
func splitFrontmatter(content string) (frontmatter, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content
	}
	frontmatter = rest[:end]
	body = rest[end+4:]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	}
	return frontmatter, body
}

// parseEntityDocument parses an entity definition document.
func parseEntityDocument(doc *domain.Document) (*entityInfo, error) {
	fm, body := splitFrontmatter(doc.Content)

	var header entityFrontmatter
	if err := yaml.Unmarshal([]byte(fm), &header); err != nil {
		return nil, err
	}
	if header.Name == "" {
		header.Name = doc.Title
	}

	info := &entityInfo{
		Name:        header.Name,
		Description: header.Description,
	}
	if info.Description == "" {
		info.Description = firstParagraph(body)
	}

	for section, lines := range splitSections(body) {
		switch strings.ToLower(section) {
		case "attributes":
			info.Attributes = parseAttributeTable(lines)
		case "states":
			info.States = parseStateList(lines)
		case "relations":
			info.Relations = parseRelationList(lines)
		case "emits":
			info.EventsEmitted = parseNameList(lines)
		case "consumes":
			info.EventsConsumed = parseNameList(lines)
		}
	}

	return info, nil
}

// splitSections groups body lines by their nearest "## Heading".
func splitSections(body string) map[string][]string {
	sections := make(map[string][]string)
	var current string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			current = strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			current = ""
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], trimmed)
		}
	}
	return sections
}

// firstParagraph returns the first non-heading, non-empty line.
func firstParagraph(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return trimmed
	}
	return ""
}

// parseAttributeTable parses a markdown table of
// "| name | type | description |" rows. A "ref:Entity" type marks the
// attribute as a reference to another entity.
func parseAttributeTable(lines []string) []attribute {
	var attrs []attribute
	for _, line := range lines {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		cells := splitTableRow(line)
		if len(cells) < 2 {
			continue
		}
		// Skip header and separator rows.
		if strings.EqualFold(cells[0], "name") || strings.HasPrefix(cells[0], "-") {
			continue
		}
		attr := attribute{Name: cells[0], Type: cells[1]}
		if len(cells) > 2 {
			attr.Description = cells[2]
		}
		if target, ok := strings.CutPrefix(attr.Type, "ref:"); ok {
			attr.IsReference = true
			attr.ReferenceEntity = strings.TrimSpace(target)
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

// splitTableRow splits "| a | b | c |" into trimmed cells.
func splitTableRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

// parseStateList parses "- name: description" list items.
func parseStateList(lines []string) []state {
	var states []state
	for _, line := range lines {
		item, ok := listItem(line)
		if !ok {
			continue
		}
		name, desc, _ := strings.Cut(item, ":")
		states = append(states, state{
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(desc),
		})
	}
	return states
}

// parseRelationList parses "- Target: name (cardinality)" list items.
func parseRelationList(lines []string) []relation {
	var rels []relation
	for _, line := range lines {
		item, ok := listItem(line)
		if !ok {
			continue
		}
		target, rest, _ := strings.Cut(item, ":")
		rel := relation{TargetEntity: strings.TrimSpace(target)}
		rest = strings.TrimSpace(rest)
		if open := strings.LastIndex(rest, "("); open >= 0 && strings.HasSuffix(rest, ")") {
			rel.Cardinality = strings.TrimSpace(rest[open+1 : len(rest)-1])
			rest = strings.TrimSpace(rest[:open])
		}
		rel.Name = rest
		if rel.Name == "" {
			rel.Name = "related_to"
		}
		rels = append(rels, rel)
	}
	return rels
}

// parseNameList parses plain "- Name" list items.
func parseNameList(lines []string) []string {
	var names []string
	for _, line := range lines {
		if item, ok := listItem(line); ok && item != "" {
			names = append(names, item)
		}
	}
	return names
}

func listItem(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* "} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}
