package firmware

import (
	"encoding/binary"
	"errors"
	"testing"
)

func buildImage(version string) []byte {
	image := make([]byte, 256)
	binary.LittleEndian.PutUint32(image[appDescOffset:], appDescMagic)
	copy(image[appDescOffset+versionOffset:appDescOffset+versionOffset+versionLength], version)
	return image
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name    string
		image   []byte
		want    string
		wantErr bool
	}{
		{
			name:  "valid descriptor",
			image: buildImage("1.4.2"),
			want:  "1.4.2",
		},
		{
			name:  "full length version",
			image: buildImage("12345678901234567890123456789012"),
			want:  "12345678901234567890123456789012",
		},
		{
			name:    "image too short",
			image:   make([]byte, appDescOffset+versionOffset),
			wantErr: true,
		},
		{
			name:    "missing magic",
			image:   make([]byte, 256),
			wantErr: true,
		},
		{
			name:    "empty version string",
			image:   buildImage(""),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVersion(tt.image)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got version %q", got)
				}
				if !errors.Is(err, ErrInvalidBundle) {
					t.Errorf("error = %v, want ErrInvalidBundle", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("version = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsArtifactName(t *testing.T) {
	for _, name := range ArtifactNames {
		if !IsArtifactName(name) {
			t.Errorf("IsArtifactName(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"", "firmware.bin", "elf", "IMAGE"} {
		if IsArtifactName(name) {
			t.Errorf("IsArtifactName(%q) = true, want false", name)
		}
	}
}

func TestObjectKeyLayout(t *testing.T) {
	if got, want := ArtifactKey("thermo-v2", "1.4.2", ArtifactImage), "firmware/thermo-v2/1.4.2/image"; got != want {
		t.Errorf("ArtifactKey = %q, want %q", got, want)
	}
	if got, want := VersionPrefix("thermo-v2", "1.4.2"), "firmware/thermo-v2/1.4.2/"; got != want {
		t.Errorf("VersionPrefix = %q, want %q", got, want)
	}
	if got, want := ModelPrefix("thermo-v2"), "firmware/thermo-v2/"; got != want {
		t.Errorf("ModelPrefix = %q, want %q", got, want)
	}
}
