package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

var filenamePattern = regexp.MustCompile(`^circle-snip_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.png$`)

func TestGenerateFilename(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC)
	got := GenerateFilename(ts)
	want := "circle-snip_2024-03-07_09-05-03.png"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestGenerateFilenameUsesUTC(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*60*60)
	ts := time.Date(2024, time.January, 1, 2, 30, 0, 0, zone)
	got := GenerateFilename(ts)
	want := "circle-snip_2023-12-31_21-30-00.png"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestNewFilenameMatchesPattern(t *testing.T) {
	for i := 0; i < 5; i++ {
		name := NewFilename()
		if !filenamePattern.MatchString(name) {
			t.Errorf("filename %q does not match %s", name, filenamePattern)
		}
	}
}

func TestGenerateFilenameSortsByTime(t *testing.T) {
	earlier := GenerateFilename(time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC))
	later := GenerateFilename(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	if !(earlier < later) {
		t.Errorf("Expected %s to sort before %s", earlier, later)
	}
}

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		name, ext, want string
	}{
		{"circle-snip_2024-03-07_09-05-03.png", "webp", "circle-snip_2024-03-07_09-05-03.webp"},
		{"snip.png", ".txt", "snip.txt"},
		{"snip", "png", "snip.png"},
		{"snip.png", "", "snip"},
	}
	for _, test := range tests {
		if got := ReplaceExt(test.name, test.ext); got != test.want {
			t.Errorf("ReplaceExt(%q, %q) = %q, want %q", test.name, test.ext, got, test.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd": "_.._etc_passwd",
		"a:b*c?.png":       "a_b_c_.png",
		" snip.png ":       "snip.png",
	}
	for input, want := range tests {
		if got := SanitizeFilename(input); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if FileExists(dir) {
		t.Error("FileExists should be false for a directory")
	}

	path := filepath.Join(dir, "snip.png")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("FileExists should be true for a written file")
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:         "512 B",
		2048:        "2.0 KB",
		5 * 1 << 20: "5.0 MB",
	}
	for size, want := range tests {
		if got := FormatFileSize(size); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", size, got, want)
		}
	}
}
