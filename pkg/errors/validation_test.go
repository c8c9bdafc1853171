package errors

import (
	"math"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "Iron Plate", false},
		{"punctuation", "Iron Ore from Miner Mk.1 on Pure node", false},
		{"unicode", "Crystal Oscillator ✦", false},

		{"empty", "", true},
		{"too long", strings.Repeat("x", MaxNameLength+1), true},
		{"null byte", "foo\x00bar", true},
		{"newline", "foo\nbar", true},
		{"leading space", " Iron", true},
		{"trailing space", "Iron ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("recipe", tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidInput) {
				t.Errorf("ValidateName(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidInput)
			}
		})
	}
}

func TestValidateClock(t *testing.T) {
	tests := []struct {
		name    string
		input   float64
		wantErr bool
	}{
		{"zero", 0, false},
		{"nominal", 100, false},
		{"max overclock", 250, false},
		{"aggregate above 250", 1000, false},
		{"negative", -1, true},
		{"nan", math.NaN(), true},
		{"inf", math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClock("Iron Plate", tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClock(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFinite(t *testing.T) {
	if err := ValidateFinite("power", 1e9); err != nil {
		t.Errorf("ValidateFinite(1e9) = %v, want nil", err)
	}
	if err := ValidateFinite("power", math.Inf(-1)); err == nil {
		t.Error("ValidateFinite(-Inf) = nil, want error")
	}
}
