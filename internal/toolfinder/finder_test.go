package toolfinder

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		output string
		want   string
	}{
		{
			name:   "cjxl",
			tool:   "cjxl",
			output: "cjxl v0.10.2 4a3b22d3 [AVX2,SSE4,SSE2]\nCopyright (c) the JPEG XL Project\n",
			want:   "0.10.2",
		},
		{
			name:   "magick",
			tool:   "magick",
			output: "Version: ImageMagick 7.1.1-29 Q16-HDRI x86_64\nCopyright: (C) 1999 ImageMagick Studio LLC\n",
			want:   "7.1.1-29",
		},
		{
			name:   "file",
			tool:   "file",
			output: "file-5.45\nmagic file from /etc/magic\n",
			want:   "5.45",
		},
		{
			name:   "unknown format falls back to first line",
			tool:   "cjxl",
			output: "something unexpected",
			want:   "unexpected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVersion(tt.tool, tt.output); got != tt.want {
				t.Errorf("ParseVersion(%q) = %q, want %q", tt.tool, got, tt.want)
			}
		})
	}
}

func TestTools_Fingerprint(t *testing.T) {
	tools := &Tools{
		Cjxl:   &ToolInfo{Name: "cjxl", Version: "0.10.2"},
		Magick: &ToolInfo{Name: "magick", Version: "7.1.1-29"},
		File:   &ToolInfo{Name: "file", Version: "5.45"},
	}

	want := "cjxl/0.10.2 magick/7.1.1-29 file/5.45"
	if got := tools.Fingerprint(); got != want {
		t.Errorf("Fingerprint() = %q, want %q", got, want)
	}
}

func TestTools_Fingerprint_Partial(t *testing.T) {
	// В режиме --no-convert найден только file
	tools := &Tools{
		File: &ToolInfo{Name: "file", Version: "5.45"},
	}

	if got := tools.Fingerprint(); got != "file/5.45" {
		t.Errorf("Fingerprint() = %q, want %q", got, "file/5.45")
	}
}
