package models

import "time"

// CabEntry maps a lower-case cab name to the bundle that contains it.
// An entry with an empty BundlePath is known but excluded from preload augmentation.
type CabEntry struct {
	Cab        string    `json:"cab"`
	BundlePath string    `json:"bundle_path"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Excluded reports whether the cab is known but must not be loaded
func (e *CabEntry) Excluded() bool {
	return e.BundlePath == ""
}

// IndexedBundle records the cabs found in one bundle file during a catalog scan.
type IndexedBundle struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Cabs    []string  `json:"cabs"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
