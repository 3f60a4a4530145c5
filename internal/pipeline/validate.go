package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrValidation marks job-parameter failures. Validation errors never retry
// and never touch a credit.
var ErrValidation = errors.New("job validation failed")

// Canonical job kinds.
const (
	KindBiometric = "biometric"
	KindPassport  = "passport"
	KindUSVisa    = "us_visa"
	KindSchengen  = "schengen"
)

// Canonical layouts.
const (
	Layout2Up = "2up"
	Layout4Up = "4up"
)

// kindAliases accepts localized and canonical spellings.
var kindAliases = map[string]string{
	"biometric":     KindBiometric,
	"biyometrik":    KindBiometric,
	"passport":      KindPassport,
	"vesikalik":     KindPassport,
	"us_visa":       KindUSVisa,
	"abd_vizesi":    KindUSVisa,
	"schengen":      KindSchengen,
	"schengen_visa": KindSchengen,
}

var layoutAliases = map[string]string{
	"2up":  Layout2Up,
	"2li":  Layout2Up,
	"2lu":  Layout2Up,
	"2'li": Layout2Up,
	"4up":  Layout4Up,
	"4lu":  Layout4Up,
	"4lü":  Layout4Up,
	"4'lü": Layout4Up,
}

const maxInputSize = 10 * 1024 * 1024 // 10 MB

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
}

// Normalize resolves aliases and validates the input file. It returns the job
// with canonical kind/layout, or a validation error.
func Normalize(job Job) (Job, error) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(job.Kind))]
	if !ok {
		return job, fmt.Errorf("%w: unknown job kind %q", ErrValidation, job.Kind)
	}
	layout, ok := layoutAliases[strings.ToLower(strings.TrimSpace(job.Layout))]
	if !ok {
		return job, fmt.Errorf("%w: unknown layout %q", ErrValidation, job.Layout)
	}
	if err := validateInputFile(job.InputPath); err != nil {
		return job, err
	}
	job.Kind = kind
	job.Layout = layout
	return job, nil
}

func validateInputFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: input path required", ErrValidation)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: input file not found: %s", ErrValidation, path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: unsupported format %q", ErrValidation, ext)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%w: input file exceeds the 10 MB limit", ErrValidation)
	}
	return nil
}
