package common

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fallback string
		want     string
		wantErr  bool
	}{
		{"trade name", "Fire Protection", "batch", "fire-protection", false},
		{"punctuation collapses", "Heating, Ventilating & A/C", "batch", "heating-ventilating-a-c", false},
		{"division number survives", "Division 23", "batch", "division-23", false},
		{"leading and trailing hyphens trimmed", "---mechanical---", "batch", "mechanical", false},
		{"fallback when empty", "", "batch", "batch", false},
		{"fallback when whitespace only", "   ", "batch", "batch", false},
		{"fallback when symbols only", "@#$%", "batch", "batch", false},
		{"error when both empty", "", "", "", true},
		{"error when both reduce to nothing", "@#$", "!@#", "", true},
		{"already a slug", "fire-protection", "batch", "fire-protection", false},
		{"mixed case", "MeCHaNiCaL", "batch", "mechanical", false},
		{"repeated spaces", "general    requirements", "batch", "general-requirements", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Slugify(tt.input, tt.fallback)
			if (err != nil) != tt.wantErr {
				t.Errorf("Slugify() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("Slugify() = %q, want %q", got, tt.want)
			}
		})
	}
}
