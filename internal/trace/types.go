// Package trace provides types for trace event collection and analysis.
package trace

import "time"

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events.
const (
	Syscall Tag = "syscall"
	IO      Tag = "io"
	Proc    Tag = "proc"
	Stdout  Tag = "stdout"
	Stderr  Tag = "stderr"
	Exit    Tag = "exit"
	Jump    Tag = "jump"
	Back    Tag = "backward"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Primary returns the first tag or empty string if none.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

// Set adds or updates an annotation.
func (a Annotations) Set(k, v string) {
	a[k] = v
}

// Get retrieves an annotation value.
func (a Annotations) Get(k string) string {
	return a[k]
}

// Event represents a trace event with rich metadata.
type Event struct {
	PC          uint64      // Address of the instruction that caused the event
	Tags        Tags        // Multiple hashtags, first is primary
	Name        string      // Syscall or instruction name (e.g., "write", "jmp")
	Detail      string      // Additional detail (e.g., `fd=1 "A"`, "-> 0x401000")
	Annotations Annotations // Key-value metadata
	Timestamp   time.Time   // When the event occurred
}

// NewEvent creates a new trace event with the given parameters.
func NewEvent(pc uint64, category, name, detail string) *Event {
	return &Event{
		PC:          pc,
		Tags:        Tags{Tag(category)},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations.Set(k, v)
}

// PrimaryTag returns the primary (first) tag with # prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Enricher enriches trace events based on category and name.
type Enricher func(e *Event)

// DefaultEnricher adds additional tags based on category, name and
// annotations.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}

	switch e.Tags[0] {
	case IO:
		e.AddTag(Syscall)
		switch e.Annotations.Get("fd") {
		case "1":
			e.AddTag(Stdout)
		case "2":
			e.AddTag(Stderr)
		}

	case Proc:
		e.AddTag(Syscall)
		if e.Name == "exit" {
			e.AddTag(Exit)
		}

	case Jump:
		if e.Annotations.Get("dir") == "back" {
			e.AddTag(Back)
		}
	}
}
