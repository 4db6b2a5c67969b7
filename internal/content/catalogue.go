package content

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var builtinCatalogue []byte

// Catalogue is a set of courses and their lessons, as stored in a catalogue
// YAML file.
//
// Example:
//
//	courses:
//	  - id: math-101
//	    name: Matematika
//	lessons:
//	  - id: math-l1
//	    course_id: math-101
//	    title: "Qo'shish va Ayirish"
//	    order_index: 1
type Catalogue struct {
	Courses []Course `yaml:"courses"`
	Lessons []Lesson `yaml:"lessons"`
}

// Builtin returns the catalogue shipped with the binary.
func Builtin() *Catalogue {
	c, err := LoadCatalogueFromReader(bytes.NewReader(builtinCatalogue))
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalogueFile reads and parses a catalogue YAML file from disk.
func LoadCatalogueFile(path string) (*Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open catalogue %q: %w", path, err)
	}
	defer f.Close()

	c, err := LoadCatalogueFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("content: parse catalogue %q: %w", path, err)
	}
	return c, nil
}

// LoadCatalogueFromReader parses catalogue YAML from r. Unknown keys are
// rejected.
func LoadCatalogueFromReader(r io.Reader) (*Catalogue, error) {
	var c Catalogue
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("content: decode catalogue yaml: %w", err)
	}
	return &c, nil
}

// Course returns the catalogue course with id.
func (c *Catalogue) Course(id string) (Course, bool) {
	for _, co := range c.Courses {
		if co.ID == id {
			return co, true
		}
	}
	return Course{}, false
}

// Lesson returns the catalogue lesson with id.
func (c *Catalogue) Lesson(id string) (Lesson, bool) {
	for _, l := range c.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}

// LessonsOf returns the lessons of courseID sorted by OrderIndex.
func (c *Catalogue) LessonsOf(courseID string) []Lesson {
	var out []Lesson
	for _, l := range c.Lessons {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	sortLessons(out)
	return out
}

// Import writes every course and lesson of c into store and returns the
// number of records written. The first store error aborts the import.
func Import(ctx context.Context, store Store, c *Catalogue) (int, error) {
	n := 0
	for _, co := range c.Courses {
		if err := store.PutCourse(ctx, co); err != nil {
			return n, fmt.Errorf("content: import course %q: %w", co.ID, err)
		}
		n++
	}
	for _, l := range c.Lessons {
		if err := store.PutLesson(ctx, l); err != nil {
			return n, fmt.Errorf("content: import lesson %q: %w", l.ID, err)
		}
		n++
	}
	return n, nil
}
