package firmware

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ESP-IDF application images carry an esp_app_desc_t structure at a fixed
// offset past the image and segment headers. The version string recorded
// at build time lives inside it.
const (
	appDescOffset        = 0x20
	appDescMagic  uint32 = 0xABCD5432
	versionOffset        = 0x10
	versionLength        = 32
)

// ExtractVersion reads the firmware version string embedded in the
// application image.
func ExtractVersion(image []byte) (string, error) {
	if len(image) < appDescOffset+versionOffset+versionLength {
		return "", fmt.Errorf("%w: image too short for app descriptor", ErrInvalidBundle)
	}
	magic := binary.LittleEndian.Uint32(image[appDescOffset:])
	if magic != appDescMagic {
		return "", fmt.Errorf("%w: app descriptor magic not found", ErrInvalidBundle)
	}
	raw := image[appDescOffset+versionOffset : appDescOffset+versionOffset+versionLength]
	version := string(bytes.TrimRight(raw, "\x00"))
	if version == "" {
		return "", fmt.Errorf("%w: empty version string", ErrInvalidBundle)
	}
	return version, nil
}
