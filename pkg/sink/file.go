package sink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/circle-snip/internal/utils"
	"github.com/menta2k/circle-snip/pkg/processing"
)

// FileSink saves snips into an output directory
type FileSink struct {
	dir       string
	format    string
	processor *processing.Processor
	logger    *slog.Logger
}

// NewFileSink creates a file sink writing into dir. Format is "png" (default)
// or "webp"; WebP output is lossless so the alpha channel survives exactly.
func NewFileSink(dir, format string) *FileSink {
	format = strings.ToLower(format)
	if format != "webp" {
		format = "png"
	}
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[1:])
		}
	}
	return &FileSink{
		dir:       dir,
		format:    format,
		processor: processing.NewProcessor(),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger used to report save failures
func (f *FileSink) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// Dir returns the output directory
func (f *FileSink) Dir() string {
	return f.dir
}

// Download saves the snip under filename and reports whether the file was
// written. It never returns an error.
func (f *FileSink) Download(png []byte, filename string) bool {
	_, ok := f.download(png, filename)
	return ok
}

// download is Download that also returns the written path
func (f *FileSink) download(png []byte, filename string) (path string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("file save panicked", "panic", fmt.Sprint(r))
			path, ok = "", false
		}
	}()

	path, err := f.Save(png, filename)
	if err != nil {
		f.logger.Warn("file save failed", "filename", filename, "error", err)
		return "", false
	}
	f.logger.Info("snip saved", "path", path, "size", utils.FormatFileSize(fileSize(path)))
	return path, true
}

// Save writes the snip and returns its final path
func (f *FileSink) Save(png []byte, filename string) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("empty image")
	}

	name := utils.SanitizeFilename(filename)
	if name == "" {
		name = utils.NewFilename()
	}

	data := png
	if f.format == "webp" {
		img, _, err := f.processor.DecodeImage(png)
		if err != nil {
			return "", fmt.Errorf("failed to decode snip: %w", err)
		}
		data, err = f.processor.EncodeWebP(img, true, 100)
		if err != nil {
			return "", fmt.Errorf("failed to encode webp: %w", err)
		}
		name = utils.ReplaceExt(name, "webp")
	}

	path := filepath.Join(f.dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSidecar stores text (e.g. a caption) next to the snip as a .txt file
func (f *FileSink) WriteSidecar(filename, text string) (string, error) {
	name := utils.ReplaceExt(utils.SanitizeFilename(filename), "txt")
	if name == ".txt" {
		return "", fmt.Errorf("empty filename")
	}
	path := filepath.Join(f.dir, name)
	if err := writeFileAtomic(path, []byte(strings.TrimSpace(text)+"\n")); err != nil {
		return "", err
	}
	return path, nil
}

// writeFileAtomic writes into a temp file in the same directory and renames
// it into place so readers never see a partial snip.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".circle-snip-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
