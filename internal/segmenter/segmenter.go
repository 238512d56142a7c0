package segmenter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrEmptyScript reports a blank input script.
	ErrEmptyScript = errors.New("script is empty")
	// ErrNoEntryPoint reports a script without a construct entry point.
	ErrNoEntryPoint = errors.New("script has no construct entry point")
	// ErrParse reports a malformed boundary marker.
	ErrParse = errors.New("malformed section marker")
)

const (
	entryMarker    = "def construct(self):"
	sectionMarker  = "self.next_section("
	defaultName    = "Main Scene"
	wrapperImports = "from manim import *"
)

// Slice is one independently compilable section of the input script.
type Slice struct {
	// Name is the human-readable scene name (the marker label, or a
	// synthesized fallback).
	Name string
	// ClassName is the PascalCase identifier used for the standalone
	// wrapper class and as the renderer entry name.
	ClassName string
	// Code is the dedented slice body.
	Code string
	// Standalone is the slice wrapped into a self-contained script.
	Standalone string
	// Produced and Consumed are the symbol sets extracted heuristically
	// from the slice body.
	Produced []string
	Consumed []string
}

// Result carries the ordered slices of a segmented script.
type Result struct {
	Slices []Slice
}

var titleCaser = cases.Title(language.English)

// Segment splits script into ordered scene slices. A script without boundary
// markers yields a single slice covering the whole entry body.
func Segment(script string) (Result, error) {
	if strings.TrimSpace(script) == "" {
		return Result{}, ErrEmptyScript
	}

	body, err := entryBody(script)
	if err != nil {
		return Result{}, err
	}

	markers, err := scanMarkers(body)
	if err != nil {
		return Result{}, err
	}

	var slices []Slice
	if len(markers) == 0 {
		slices = append(slices, newSlice(defaultName, 0, body))
	} else {
		for i, m := range markers {
			start := m.offset
			if i == 0 {
				// Keep any preamble ahead of the first marker so the
				// concatenated slices reconstruct the original body.
				start = 0
			}
			end := len(body)
			if i+1 < len(markers) {
				end = markers[i+1].offset
			}
			name := strings.TrimSpace(m.label)
			if name == "" {
				name = fmt.Sprintf("Scene %d", i+1)
			}
			slices = append(slices, newSlice(name, i, body[start:end]))
		}
	}

	return Result{Slices: slices}, nil
}

type marker struct {
	offset int
	label  string
}

// entryBody returns the indented block following the construct entry point.
func entryBody(script string) (string, error) {
	idx := strings.Index(script, entryMarker)
	if idx < 0 {
		return "", ErrNoEntryPoint
	}

	lineStart := strings.LastIndexByte(script[:idx], '\n') + 1
	entryIndent := leadingWhitespace(script[lineStart:idx])

	rest := script[idx+len(entryMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}

	var body strings.Builder
	for _, line := range strings.SplitAfter(rest, "\n") {
		if line == "" {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && len(leadingWhitespace(line)) <= len(entryIndent) {
			break
		}
		body.WriteString(line)
	}
	if strings.TrimSpace(body.String()) == "" {
		return "", ErrNoEntryPoint
	}
	return body.String(), nil
}

func scanMarkers(body string) ([]marker, error) {
	var markers []marker
	search := 0
	for {
		idx := strings.Index(body[search:], sectionMarker)
		if idx < 0 {
			return markers, nil
		}
		idx += search
		label, next, err := parseStringLiteral(body, idx+len(sectionMarker))
		if err != nil {
			return nil, err
		}
		markers = append(markers, marker{offset: lineStartBefore(body, idx), label: label})
		search = next
	}
}

// parseStringLiteral reads the quoted argument starting at or after pos.
// An unterminated literal is a parse error; a non-literal argument is
// tolerated and yields an empty label.
func parseStringLiteral(body string, pos int) (string, int, error) {
	i := pos
	for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
		i++
	}
	if i >= len(body) || (body[i] != '"' && body[i] != '\'') {
		return "", pos, nil
	}
	quote := body[i]
	i++
	var label strings.Builder
	for i < len(body) {
		c := body[i]
		switch c {
		case '\\':
			if i+1 < len(body) {
				label.WriteByte(body[i+1])
				i += 2
				continue
			}
			i++
		case quote:
			return label.String(), i + 1, nil
		case '\n':
			return "", 0, fmt.Errorf("%w: unterminated string literal at offset %d", ErrParse, pos)
		default:
			label.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string literal at offset %d", ErrParse, pos)
}

func lineStartBefore(body string, idx int) int {
	return strings.LastIndexByte(body[:idx], '\n') + 1
}

func newSlice(name string, index int, raw string) Slice {
	code := dedent(raw)
	produced, consumed := ExtractSymbols(code)
	className := ClassName(name, index)
	return Slice{
		Name:       name,
		ClassName:  className,
		Code:       code,
		Standalone: Standalone(className, code),
		Produced:   produced,
		Consumed:   consumed,
	}
}

// dedent strips the minimum common leading whitespace of all non-blank lines.
func dedent(text string) string {
	lines := strings.Split(text, "\n")
	prefix := ""
	found := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := leadingWhitespace(line)
		if !found || len(indent) < len(prefix) {
			prefix = indent
			found = true
		}
	}
	if !found || prefix == "" {
		return text
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = strings.TrimRight(line, " \t")
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

func leadingWhitespace(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' {
			return line[:i]
		}
	}
	return line
}

var nonIdentifierRunes = regexp.MustCompile(`[^A-Za-z0-9]+`)

// ClassName derives a Python class identifier from a scene name, falling
// back to a positional name when nothing usable remains.
func ClassName(name string, index int) string {
	titled := titleCaser.String(strings.TrimSpace(name))
	cleaned := nonIdentifierRunes.ReplaceAllString(titled, "")
	if cleaned == "" {
		cleaned = fmt.Sprintf("Scene%d", index+1)
	}
	if cleaned[0] >= '0' && cleaned[0] <= '9' {
		cleaned = "Scene" + cleaned
	}
	return cleaned
}

// Standalone turns a dedented slice body into a self-contained script
// with its own Scene class and construct method.
func Standalone(className, code string) string {
	var b strings.Builder
	b.WriteString(wrapperImports)
	b.WriteString("\n\n\nclass ")
	b.WriteString(className)
	b.WriteString("(Scene):\n    def construct(self):\n")
	for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("        ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
