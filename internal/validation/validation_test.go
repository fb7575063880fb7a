package validation

import (
	"strings"
	"testing"
)

func TestValidateSiteName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "summit", false},
		{"with hyphen", "base-ir2", false},
		{"with underscore", "test_stand", false},
		{"with dot", "slac.ir2", false},
		{"numbers", "123", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"hidden", ".hidden", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"control char", "a\x00b", true},
		{"space", "a b", true},
		{"query", "a?b", true},
		{"reserved", "channels", true},
		{"reserved upper", "Sites", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSiteName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSiteName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSourceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", false},
		{"simple", "spare", false},
		{"reserved words are fine", "channels", false},
		{"slash", "a/b", true},
		{"hidden", ".x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSourceName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNameMessages(t *testing.T) {
	err := ValidateName("ab", NameRules{MinLength: 3, MaxLength: 10})
	if err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("expected too short error, got %v", err)
	}

	err = ValidateName("a.b", NameRules{MinLength: 1, MaxLength: 10})
	if err == nil || !strings.Contains(err.Error(), "invalid character '.'") {
		t.Errorf("expected invalid character error, got %v", err)
	}

	err = ValidateSiteName("loads")
	if err == nil || !strings.Contains(err.Error(), "reserved") {
		t.Errorf("expected reserved error, got %v", err)
	}
}
