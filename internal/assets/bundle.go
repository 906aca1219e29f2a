package assets

import (
	"strings"
)

// Bundle is a container of serialized files
type Bundle struct {
	Name  string  `json:"name"`
	Files []*File `json:"files"`
}

// File returns the file with the given name (case-insensitive)
func (b *Bundle) File(name string) *File {
	for _, f := range b.Files {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// CabNames returns the lower-case names of every file in the bundle
func (b *Bundle) CabNames() []string {
	names := make([]string, 0, len(b.Files))
	for _, f := range b.Files {
		names = append(names, strings.ToLower(f.Name))
	}
	return names
}

// IsSharedAssets reports whether a file name denotes a scene's shared assets file
func IsSharedAssets(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".sharedassets")
}

// IsResource reports whether a file name denotes a raw resource stream
func IsResource(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".ress") || strings.HasSuffix(lower, ".resource")
}

// MainFile returns the first file that is neither shared assets nor a resource stream
func (b *Bundle) MainFile() *File {
	for _, f := range b.Files {
		if !IsSharedAssets(f.Name) && !IsResource(f.Name) {
			return f
		}
	}
	return nil
}

// SharedFile returns the scene's shared assets file
func (b *Bundle) SharedFile() *File {
	for _, f := range b.Files {
		if IsSharedAssets(f.Name) {
			return f
		}
	}
	return nil
}
