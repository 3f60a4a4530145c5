package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveOutputPath derives the output target when none is given and
// guarantees the result does not clobber an existing file.
func (r *Runner) resolveOutputPath(job Job) (string, error) {
	target := job.OutputPath
	if target == "" {
		stem := strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
		target = filepath.Join(r.outputDir, fmt.Sprintf("%s_%s_%s.jpg", stem, job.Kind, job.Layout))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return uniquePath(target), nil
}

// uniquePath appends _1, _2, ... until the path is free. Existing files are
// never overwritten silently.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".jpg"
	}
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
