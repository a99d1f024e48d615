package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilenamePrefix starts every generated snip filename
const FilenamePrefix = "circle-snip"

// filenameLayout renders as YYYY-MM-DD_HH-MM-SS
const filenameLayout = "2006-01-02_15-04-05"

// GenerateFilename returns the snip filename for the given capture time.
// Times are always rendered in UTC so names sort in capture order on any machine.
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("%s_%s.png", FilenamePrefix, t.UTC().Format(filenameLayout))
}

// NewFilename returns the snip filename for the current time
func NewFilename() string {
	return GenerateFilename(time.Now())
}

// ReplaceExt swaps the extension of filename for ext (with or without the dot)
func ReplaceExt(filename, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lower-cased file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// SanitizeFilename replaces path separators and reserved characters so a
// caller-supplied name cannot escape the output directory
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.Trim(result, " .")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
