package dimension

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Dimension
		wantOK bool
	}{
		{"full hd", "1920x1080", Dimension{1920, 1080}, true},
		{"surrounding space", " 800x600 ", Dimension{800, 600}, true},
		{"upper x", "640X480", Dimension{640, 480}, true},
		{"zero", "0x0", Dimension{0, 0}, true},
		{"not a size", "not-a-size", Dimension{}, false},
		{"missing height", "1920x", Dimension{}, false},
		{"negative", "-1x10", Dimension{}, false},
		{"decimal", "10.5x3", Dimension{}, false},
		{"extra part", "1x2x3", Dimension{}, false},
		{"empty", "", Dimension{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDimension_Derived(t *testing.T) {
	d, ok := Parse("1920x1080")
	if !ok {
		t.Fatal("Parse failed")
	}

	if got := d.FullSize(); got != 1920*1080 {
		t.Errorf("FullSize() = %d", got)
	}
	if got := d.AspectRatio(); got != "16:9" {
		t.Errorf("AspectRatio() = %s, want 16:9", got)
	}
	if got := d.AspectDecimal(); math.Abs(got-16.0/9.0) > 1e-9 {
		t.Errorf("AspectDecimal() = %f", got)
	}
	if got := d.WidthRem(); got != 120 {
		t.Errorf("WidthRem() = %f, want 120", got)
	}
	if got := d.HeightRem(); got != 67.5 {
		t.Errorf("HeightRem() = %f, want 67.5", got)
	}
	if got := d.String(); got != "1920x1080" {
		t.Errorf("String() = %s", got)
	}
}

func TestDimension_ZeroSides(t *testing.T) {
	d := Dimension{Width: 0, Height: 0}
	if d.AspectRatio() != "0:0" {
		t.Errorf("AspectRatio() = %s", d.AspectRatio())
	}
	if d.AspectDecimal() != 0 {
		t.Errorf("AspectDecimal() = %f", d.AspectDecimal())
	}
	if (Dimension{Width: 5, Height: 0}).AspectRatio() != "1:0" {
		t.Error("5x0 should reduce to 1:0")
	}
}
