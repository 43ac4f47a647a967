package category

import "strings"

// Category is one of the closed set of semantic buckets a document can be
// routed to.
type Category string

const (
	Timetable    Category = "TIMETABLE"
	Scholarship  Category = "SCHOLARSHIP"
	Event        Category = "EVENT"
	Exam         Category = "EXAM"
	Internship   Category = "INTERNSHIP"
	Announcement Category = "ANNOUNCEMENT"
	Complaint    Category = "COMPLAINT"
)

// Default is the catch-all bucket used when classification is ambiguous
// or fails outright.
const Default = Announcement

// All lists every valid category. Longer labels come first so that a
// substring scan over classifier output prefers the most specific token.
func All() []Category {
	return []Category{
		Announcement,
		Scholarship,
		Internship,
		Timetable,
		Complaint,
		Event,
		Exam,
	}
}

// aliases maps trimmed, upper-cased label variants that don't reduce to a
// category by plural stripping alone.
var aliases = map[string]Category{
	"BROADCAST": Announcement,
	"NOTICE":    Announcement,
	"EXAMS":     Exam,
	"NEWS":      Announcement,
}

// Parse resolves a raw label to a Category, normalizing case, whitespace,
// plural forms and known synonyms. ok is false for unrecognized labels.
func Parse(raw string) (Category, bool) {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if label == "" {
		return "", false
	}
	if c, ok := lookup(label); ok {
		return c, ok
	}
	// Plural forms: SCHOLARSHIPS -> SCHOLARSHIP etc.
	if trimmed, found := strings.CutSuffix(label, "S"); found {
		return lookup(trimmed)
	}
	return "", false
}

func lookup(label string) (Category, bool) {
	for _, c := range All() {
		if label == string(c) {
			return c, true
		}
	}
	if c, ok := aliases[label]; ok {
		return c, true
	}
	return "", false
}

// Normalize resolves a raw label, coercing anything unrecognized to the
// catch-all category.
func Normalize(raw string) Category {
	if c, ok := Parse(raw); ok {
		return c
	}
	return Default
}

// Collection maps a category to its store collection name. Names follow
// the shared store's existing collections.
func (c Category) Collection() string {
	switch c {
	case Timetable:
		return "timetable"
	case Scholarship:
		return "scholarships"
	case Event:
		return "events"
	case Exam:
		return "exams"
	case Internship:
		return "internships"
	case Announcement:
		return "broadcasts"
	case Complaint:
		return "complaints"
	}
	return ""
}
