package gateway

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
	"bmp":  {0x42, 0x4D},
}

// sniffImageFormat identifies an image payload by its file signature,
// falling back to a header decode for formats without a distinctive
// prefix. Returns a format name usable in a MIME subtype.
func sniffImageFormat(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}

	for format, signature := range imageSignatures {
		if len(data) >= len(signature) && bytes.Equal(signature, data[:len(signature)]) {
			return format, nil
		}
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unrecognized image header: %x", data[:min(len(data), 8)])
	}
	return format, nil
}
