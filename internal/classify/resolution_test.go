package classify

import "testing"

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in   string
		want Resolution
	}{
		{"Movie HD", Resolution720p},
		{"Movie 720p", Resolution720p},
		{"Movie 720p WEB x264-XLF", Resolution720p},
		{"Movie SD", Resolution480p},
		{"Movie WEB x264-XLF", Resolution480p},
		{"Movie 1080p", Resolution1080p},
		{"Movie 2160p", Resolution2160p},
		{"Movie 4k", Resolution2160p},
		{"Movie UHD", Resolution2160p},
		{"Movie", ResolutionUnknown},
		// Quality keywords must be whole words.
		{"Shadow Hunters", ResolutionUnknown},
	}
	for _, tt := range tests {
		if got := ParseResolution(tt.in); got != tt.want {
			t.Errorf("ParseResolution(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripResolutionTags(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Heat 1080p", "Heat"},
		{"Heat [4K]", "Heat"},
		{"Heat (UHD) Extended", "Heat Extended"},
		{"Breaking Bad S01E01 HD", "Breaking Bad S01E01"},
		{"Shadow", "Shadow"},
	}
	for _, tt := range tests {
		if got := stripResolutionTags(tt.in); got != tt.want {
			t.Errorf("stripResolutionTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
