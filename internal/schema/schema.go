package schema

import "campushub/internal/category"

// Value describes an expected data shape in the extraction engine's
// response-schema dialect. It marshals directly into the engine request.
type Value struct {
	Type       string            `json:"type"`
	Properties map[string]*Value `json:"properties,omitempty"`
	Items      *Value            `json:"items,omitempty"`
	Required   []string          `json:"required,omitempty"`
	Enum       []string          `json:"enum,omitempty"`
}

func str() *Value { return &Value{Type: "STRING"} }

func arr(items *Value) *Value { return &Value{Type: "ARRAY", Items: items} }

func obj(props map[string]*Value, required ...string) *Value {
	return &Value{Type: "OBJECT", Properties: props, Required: required}
}

// registry holds the expected record shape per category. Every schema is
// an array of objects; extraction always yields a batch.
var registry = map[category.Category]*Value{
	category.Timetable: arr(obj(map[string]*Value{
		"day":      str(),
		"branch":   str(),
		"year":     str(),
		"division": str(),
		"slots": arr(obj(map[string]*Value{
			"time":    str(),
			"subject": str(),
			"room":    str(),
			"color":   str(),
		})),
	}, "day", "branch", "year", "division", "slots")),

	category.Scholarship: arr(obj(map[string]*Value{
		"name":        str(),
		"amount":      str(),
		"deadline":    str(),
		"eligibility": str(),
		"category":    str(),
	}, "name", "amount", "deadline", "eligibility", "category")),

	category.Event: arr(obj(map[string]*Value{
		"title":       str(),
		"date":        str(),
		"venue":       str(),
		"description": str(),
		"category":    str(),
	}, "title", "date", "venue", "description", "category")),

	category.Exam: arr(obj(map[string]*Value{
		"subject":  str(),
		"date":     str(),
		"time":     str(),
		"venue":    str(),
		"branch":   str(),
		"year":     str(),
		"division": str(),
	}, "subject", "date", "time", "venue", "branch", "year", "division")),

	category.Internship: arr(obj(map[string]*Value{
		"company":  str(),
		"role":     str(),
		"location": str(),
		"stipend":  str(),
		"branch":   str(),
		"year":     str(),
	}, "company", "role", "location", "stipend", "branch", "year")),

	category.Announcement: arr(obj(map[string]*Value{
		"title":    str(),
		"content":  str(),
		"priority": {Type: "STRING", Enum: []string{"HIGH", "NORMAL"}},
	}, "title", "content")),

	category.Complaint: arr(obj(map[string]*Value{
		"text":   str(),
		"status": {Type: "STRING", Enum: []string{"PENDING", "RESOLVED"}},
	}, "text")),
}

// Get returns the extraction schema for a category. Callers must resolve
// or default the category first; an unknown category is a caller error.
func Get(c category.Category) (*Value, bool) {
	v, ok := registry[c]
	return v, ok
}
