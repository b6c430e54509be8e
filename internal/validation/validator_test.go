package validation

import (
	"errors"
	"testing"
)

type testChild struct {
	ID string `json:"id" validate:"required"`
}

type testRecord struct {
	Title    string      `json:"title" validate:"required"`
	Count    int         `json:"count" validate:"gte=0"`
	Children []testChild `json:"children" validate:"dive"`
	Ignored  string      `json:"-"`
}

// ===================================================================================================
// Singleton
// ===================================================================================================

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

// ===================================================================================================
// Validate
// ===================================================================================================

func TestValidate_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"struct", testRecord{Title: "a", Children: []testChild{{ID: "1"}}}},
		{"pointer", &testRecord{Title: "a"}},
		{"slice", []testRecord{{Title: "a"}, {Title: "b"}}},
		{"empty slice", []testRecord{}},
		{"non struct", []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.input); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestValidate_IssuePaths(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		wantPath string
		wantTag  string
	}{
		{"missing title", testRecord{}, "title", "required"},
		{"negative count", testRecord{Title: "a", Count: -1}, "count", "gte"},
		{"nested child", testRecord{Title: "a", Children: []testChild{{}}}, "children[0].id", "required"},
		{"slice element", []testRecord{{Title: "ok"}, {}}, "[1].title", "required"},
		{"nil pointer", (*testRecord)(nil), "", "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			var re *RequestValidationError
			if !errors.As(err, &re) {
				t.Fatalf("Validate() error = %v, want *RequestValidationError", err)
			}
			issues := re.Issues()
			if len(issues) != 1 {
				t.Fatalf("got %d issues, want 1: %+v", len(issues), issues)
			}
			if issues[0].Path != tt.wantPath || issues[0].Tag != tt.wantTag {
				t.Errorf("issue = %+v, want path %q tag %q", issues[0], tt.wantPath, tt.wantTag)
			}
			if issues[0].Message == "" {
				t.Error("issue message should not be empty")
			}
		})
	}
}

// ===================================================================================================
// ValidateVar
// ===================================================================================================

func TestValidateVar(t *testing.T) {
	if err := ValidateVar("query", "abc", "required,min=1"); err != nil {
		t.Errorf("ValidateVar() error = %v", err)
	}

	err := ValidateVar("query", "", "required,min=1")
	var re *RequestValidationError
	if !errors.As(err, &re) {
		t.Fatalf("ValidateVar() error = %v", err)
	}
	if got := re.Issues()[0]; got.Path != "query" || got.Message != "query is required" {
		t.Errorf("issue = %+v", got)
	}
	if re.Error() != "query: query is required" {
		t.Errorf("Error() = %q", re.Error())
	}
}
