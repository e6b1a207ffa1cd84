package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Uploader materializes raw image bytes into a durable, publicly
// addressable URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

var (
	// ErrInvalidImage indicates a payload that is not a base64 data URI.
	ErrInvalidImage = errors.New("media: invalid image payload")
	// ErrImageTooLarge indicates a decoded payload above the configured limit.
	ErrImageTooLarge = errors.New("media: image too large")
	// ErrUploadFailed indicates the hosting backend rejected the upload.
	ErrUploadFailed = errors.New("media: upload failed")
)

// DecodeDataURI parses a "data:<mime>;base64,<payload>" string as sent by
// browser clients and returns the raw bytes with their content type.
func DecodeDataURI(uri string, maxBytes int64) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", ErrInvalidImage
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrInvalidImage
	}
	contentType, found := strings.CutSuffix(meta, ";base64")
	if !found {
		return nil, "", fmt.Errorf("%w: not base64 encoded", ErrInvalidImage)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes {
		return nil, "", ErrImageTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, contentType, nil
}
