// Package detection sends images to an image-recognition provider and returns
// the labels it detects.
//
// The provider is abstracted behind Detector so the analysis workflow can be
// exercised without network access. RekognitionDetector is the production
// implementation backed by AWS S3 and Amazon Rekognition.
package detection

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/objectrekognition/rekognition-server/pkg/model"
)

// ErrEmptyImage is wrapped by a DetectionError when no image bytes are given.
var ErrEmptyImage = errors.New("image data is empty")

// Detector returns the labels detected in an image.
type Detector interface {
	// Analyze stages data under key and runs label detection on it.
	// Failures are reported as *DetectionError.
	Analyze(ctx context.Context, key string, data []byte) (model.LabelSet, error)
}

// DetectionError reports that an image could not be staged or analyzed.
type DetectionError struct {
	Key     string
	Message string
	Err     error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed for %q: %s", e.Key, e.Message)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// StagingKey returns the object key an upload is staged under. Keys are
// scoped by content digest so uploads that share a filename never collide.
func StagingKey(digest, filename string) string {
	return digest + "/" + sanitizeFilename(filename)
}

func sanitizeFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return "image"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
