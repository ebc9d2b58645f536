package validation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const (
	// PatientIDLength is the length of a Medicare number
	PatientIDLength = 11

	// MinImageKB and MaxImageKB bound the accepted image size, inclusive
	MinImageKB = 4.0
	MaxImageKB = 150.0
)

// LabLookup reports whether a lab id is in the reference set.
type LabLookup interface {
	LabExists(ctx context.Context, labID string) (bool, error)
}

// ValidatePatientID reports whether id is an 11-digit number. No checksum is
// verified.
func ValidatePatientID(id string) bool {
	if len(id) != PatientIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateLabID reports whether id is non-empty and present in the lab
// reference set. The error is only set when the lookup itself fails.
func ValidateLabID(ctx context.Context, id string, lookup LabLookup) (bool, error) {
	if id == "" {
		return false, nil
	}
	ok, err := lookup.LabExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to look up lab: %w", err)
	}
	return ok, nil
}

// ImageErrorKind classifies an image rejection.
type ImageErrorKind int

const (
	ImageTooSmall ImageErrorKind = iota + 1
	ImageTooLarge
	ImageInvalidFormat
)

// ImageError describes why an image payload was rejected.
type ImageError struct {
	Kind   ImageErrorKind
	SizeKB float64
	// Format is the detected container format, empty if none was recognised
	Format string
	Err    error
}

func (e *ImageError) Error() string {
	switch e.Kind {
	case ImageTooSmall:
		return fmt.Sprintf("image too small (<%.0fKB). Size: %.2fKB", MinImageKB, e.SizeKB)
	case ImageTooLarge:
		return fmt.Sprintf("image too large (>%.0fKB). Size: %.2fKB", MaxImageKB, e.SizeKB)
	default:
		if e.Format != "" {
			return fmt.Sprintf("invalid image format. Expected JPEG, got %s", e.Format)
		}
		if e.Err != nil {
			return fmt.Sprintf("invalid image: %v", e.Err)
		}
		return "invalid image"
	}
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// IsSizeError reports whether the rejection was about the payload size.
func (e *ImageError) IsSizeError() bool {
	return e.Kind == ImageTooSmall || e.Kind == ImageTooLarge
}

// ValidateImage checks the size bounds, then that data decodes as a JPEG.
// It returns nil or an *ImageError.
func ValidateImage(data []byte) error {
	sizeKB := float64(len(data)) / 1024
	if sizeKB < MinImageKB {
		return &ImageError{Kind: ImageTooSmall, SizeKB: sizeKB}
	}
	if sizeKB > MaxImageKB {
		return &ImageError{Kind: ImageTooLarge, SizeKB: sizeKB}
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return &ImageError{Kind: ImageInvalidFormat, SizeKB: sizeKB, Err: err}
	}
	if format != "jpeg" {
		return &ImageError{Kind: ImageInvalidFormat, SizeKB: sizeKB, Format: format}
	}

	return nil
}
