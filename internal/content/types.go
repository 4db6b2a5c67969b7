package content

import (
	"strings"
	"time"
)

// Role is the access level of a user profile.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// DefaultDisplayName is given to profiles created without a display name.
const DefaultDisplayName = "Oquvchi"

// Course is a published course shown in the catalogue.
type Course struct {
	ID          string `yaml:"id"          json:"id"`
	Name        string `yaml:"name"        json:"name"`
	Description string `yaml:"description" json:"description"`
	Icon        string `yaml:"icon"        json:"icon"`
	ColorHex    string `yaml:"color_hex"   json:"colorHex"`
	LevelTag    string `yaml:"level_tag"   json:"levelTag"`
}

// Section is one readable block of a lesson.
type Section struct {
	Title    string `yaml:"title"               json:"title"`
	Content  string `yaml:"content"             json:"content"`
	Image    string `yaml:"image,omitempty"     json:"image,omitempty"`
	ImageAlt string `yaml:"image_alt,omitempty" json:"imageAlt,omitempty"`
	Caption  string `yaml:"caption,omitempty"   json:"caption,omitempty"`
}

// Text is the form a section is read aloud in.
func (s Section) Text() string {
	return s.Title + ". " + s.Content
}

// QuizOption is one answer to a [QuizQuestion].
type QuizOption struct {
	Text      string `yaml:"text"       json:"text"`
	IsCorrect bool   `yaml:"is_correct" json:"isCorrect"`
}

// QuizQuestion is a multiple-choice question attached to a lesson.
type QuizQuestion struct {
	Question    string       `yaml:"question"    json:"question"`
	Options     []QuizOption `yaml:"options"     json:"options"`
	Explanation string       `yaml:"explanation" json:"explanation"`
}

// LessonContent is the body of a lesson.
type LessonContent struct {
	Sections []Section      `yaml:"sections"       json:"sections"`
	Quiz     []QuizQuestion `yaml:"quiz,omitempty" json:"quiz,omitempty"`
}

// Lesson belongs to exactly one course. Lessons of a course are ordered by
// OrderIndex.
type Lesson struct {
	ID         string        `yaml:"id"          json:"id"`
	CourseID   string        `yaml:"course_id"   json:"courseId"`
	Title      string        `yaml:"title"       json:"title"`
	Content    LessonContent `yaml:"content"     json:"content"`
	Duration   string        `yaml:"duration"    json:"duration"`
	Level      string        `yaml:"level"       json:"level"`
	OrderIndex int           `yaml:"order_index" json:"orderIndex"`
}

// SectionTexts returns the read-aloud text of every section in order.
func (l Lesson) SectionTexts() []string {
	out := make([]string, 0, len(l.Content.Sections))
	for _, s := range l.Content.Sections {
		if strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.Content) == "" {
			continue
		}
		out = append(out, s.Text())
	}
	return out
}

// Profile is a learner or administrator account.
type Profile struct {
	UID               string    `json:"uid"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"displayName"`
	PhotoURL          string    `json:"photoURL"`
	Role              Role      `json:"role"`
	EnrolledCourseIDs []string  `json:"enrolledCourseIds"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt,omitzero"`
}

// Progress tracks a user's advance through one course. Its ID equals the
// course ID.
type Progress struct {
	ID                 string    `json:"id"`
	CourseID           string    `json:"courseId"`
	LastLessonID       string    `json:"lastLessonId"`
	CompletedLessonIDs []string  `json:"completedLessonIds"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Neighbours returns the lessons immediately before and after id in lessons,
// which must already be in course order. Missing neighbours are nil.
func Neighbours(lessons []Lesson, id string) (prev, next *Lesson) {
	for i := range lessons {
		if lessons[i].ID != id {
			continue
		}
		if i > 0 {
			prev = &lessons[i-1]
		}
		if i+1 < len(lessons) {
			next = &lessons[i+1]
		}
		return prev, next
	}
	return nil, nil
}
