package segmenter

import (
	"errors"
	"strings"
	"testing"
)

const multiSectionScript = `from manim import *


class Lesson(Scene):
    def construct(self):
        self.next_section("Intro")
        title = Text("Welcome")
        self.play(Write(title))
        self.next_section("Body")
        circle = Circle()
        self.play(Create(circle))
        self.play(Transform(title, circle))
        self.next_section("Outro")
        self.play(FadeOut(circle))
`

func TestSegmentYieldsOneSlicePerMarker(t *testing.T) {
	result, err := Segment(multiSectionScript)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(result.Slices) != 3 {
		t.Fatalf("expected 3 slices, got %d", len(result.Slices))
	}
	names := []string{"Intro", "Body", "Outro"}
	for i, want := range names {
		if result.Slices[i].Name != want {
			t.Fatalf("slice %d: expected name %q, got %q", i, want, result.Slices[i].Name)
		}
	}
	if result.Slices[1].ClassName != "Body" {
		t.Fatalf("expected class name Body, got %q", result.Slices[1].ClassName)
	}
}

func TestSegmentReconstructsEntryBody(t *testing.T) {
	result, err := Segment(multiSectionScript)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	var joined strings.Builder
	for _, slice := range result.Slices {
		joined.WriteString(slice.Code)
	}
	body, err := entryBody(multiSectionScript)
	if err != nil {
		t.Fatalf("entryBody: %v", err)
	}
	if joined.String() != dedent(body) {
		t.Fatalf("concatenated slices do not reconstruct the entry body:\n%q\nvs\n%q", joined.String(), dedent(body))
	}
}

func TestSegmentWithoutMarkers(t *testing.T) {
	script := `class Single(Scene):
    def construct(self):
        dot = Dot()
        self.play(Create(dot))
`
	result, err := Segment(script)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(result.Slices) != 1 {
		t.Fatalf("expected 1 slice, got %d", len(result.Slices))
	}
	if result.Slices[0].Name != "Main Scene" {
		t.Fatalf("expected default name, got %q", result.Slices[0].Name)
	}
}

func TestSegmentEmptyScript(t *testing.T) {
	if _, err := Segment("   \n\t\n"); !errors.Is(err, ErrEmptyScript) {
		t.Fatalf("expected ErrEmptyScript, got %v", err)
	}
}

func TestSegmentMissingEntryPoint(t *testing.T) {
	if _, err := Segment("print('no scene here')\n"); !errors.Is(err, ErrNoEntryPoint) {
		t.Fatalf("expected ErrNoEntryPoint, got %v", err)
	}
}

func TestSegmentUnterminatedMarkerLabel(t *testing.T) {
	script := `class Broken(Scene):
    def construct(self):
        self.next_section("Oops
        self.play(Wait())
`
	if _, err := Segment(script); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestSegmentNonLiteralMarkerArgument(t *testing.T) {
	script := `class Dynamic(Scene):
    def construct(self):
        self.next_section(label)
        self.play(Wait())
`
	result, err := Segment(script)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(result.Slices) != 1 {
		t.Fatalf("expected 1 slice, got %d", len(result.Slices))
	}
	if result.Slices[0].Name != "Scene 1" {
		t.Fatalf("expected synthesized name, got %q", result.Slices[0].Name)
	}
}

func TestStandaloneWrapper(t *testing.T) {
	result, err := Segment(multiSectionScript)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	standalone := result.Slices[0].Standalone
	if !strings.HasPrefix(standalone, "from manim import *") {
		t.Fatalf("wrapper missing import line:\n%s", standalone)
	}
	if !strings.Contains(standalone, "class Intro(Scene):") {
		t.Fatalf("wrapper missing class declaration:\n%s", standalone)
	}
	if !strings.Contains(standalone, "    def construct(self):") {
		t.Fatalf("wrapper missing construct method:\n%s", standalone)
	}
}

func TestExtractSymbols(t *testing.T) {
	code := `title = Text("Welcome")
self.play(Write(title))
self.play(Transform(title, circle))
`
	produced, consumed := ExtractSymbols(code)
	if len(produced) != 1 || produced[0] != "title" {
		t.Fatalf("expected produced [title], got %v", produced)
	}
	foundCircle := false
	for _, name := range consumed {
		if name == "title" {
			t.Fatalf("produced symbol leaked into consumed set: %v", consumed)
		}
		if name == "circle" {
			foundCircle = true
		}
	}
	if !foundCircle {
		t.Fatalf("expected circle in consumed set, got %v", consumed)
	}
}

func TestBuildGraphCrossSliceDependency(t *testing.T) {
	result, err := Segment(multiSectionScript)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	graph := BuildGraph(result.Slices)
	if deps := graph.DependenciesOf("Intro"); len(deps) != 0 {
		t.Fatalf("Intro should have no dependencies, got %v", deps)
	}
	bodyDeps := graph.DependenciesOf("Body")
	if len(bodyDeps) != 1 || bodyDeps[0] != "Intro" {
		t.Fatalf("expected Body to depend on Intro, got %v", bodyDeps)
	}
	outroDeps := graph.DependenciesOf("Outro")
	if len(outroDeps) != 1 || outroDeps[0] != "Body" {
		t.Fatalf("expected Outro to depend on Body, got %v", outroDeps)
	}
}

func TestBuildGraphLastProducerWins(t *testing.T) {
	slices := []Slice{
		{Name: "A", Produced: []string{"shape"}},
		{Name: "B", Produced: []string{"shape"}},
		{Name: "C", Consumed: []string{"shape"}},
	}
	graph := BuildGraph(slices)
	deps := graph.DependenciesOf("C")
	if len(deps) != 1 || deps[0] != "B" {
		t.Fatalf("expected C to depend on B, got %v", deps)
	}
}

func TestDedent(t *testing.T) {
	text := "        a = Circle()\n        self.play(a)\n"
	got := dedent(text)
	want := "a = Circle()\nself.play(a)\n"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
