package media

import "testing"

func TestKindForPath(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"photos/a.jpg", KindImage},
		{"photos/B.JPEG", KindImage},
		{"photos/c.webp", KindImage},
		{"clips/d.mp4", KindVideo},
		{"clips/e.MOV", KindVideo},
		{"notes.txt", KindOther},
		{"noext", KindOther},
	}

	for _, tt := range tests {
		if got := KindForPath(tt.path); got != tt.want {
			t.Errorf("KindForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSizeScaled(t *testing.T) {
	tests := []struct {
		name  string
		size  Size
		scale float64
		want  Size
	}{
		{"Retina", Size{320, 320}, 2, Size{640, 640}},
		{"Fractional", Size{100, 50}, 1.5, Size{150, 75}},
		{"Zero scale treated as one", Size{200, 100}, 0, Size{200, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.size.Scaled(tt.scale); got != tt.want {
				t.Errorf("Scaled(%v) = %v, want %v", tt.scale, got, tt.want)
			}
		})
	}
}

func TestSizeString(t *testing.T) {
	if got := (Size{Width: 600, Height: 400}).String(); got != "600x400" {
		t.Errorf("String() = %q, want 600x400", got)
	}
	if !(Size{Width: 0, Height: 10}).IsZero() {
		t.Error("size with zero width should report IsZero")
	}
}

func TestParseContentMode(t *testing.T) {
	if ParseContentMode("fill") != ContentModeFill || ParseContentMode("FILL") != ContentModeFill {
		t.Error("fill should parse case-insensitively")
	}
	if ParseContentMode("") != ContentModeFit || ParseContentMode("stretch") != ContentModeFit {
		t.Error("unknown modes should default to fit")
	}
}

func TestPaletteSummary(t *testing.T) {
	m := AssetMetadata{ID: "a"}
	if m.PaletteSummary() != "" {
		t.Errorf("empty palette summary = %q, want empty", m.PaletteSummary())
	}
	m.Palette = []string{"#112233", "#445566"}
	if m.PaletteSummary() != "#112233" {
		t.Errorf("PaletteSummary() = %q, want #112233", m.PaletteSummary())
	}
}
