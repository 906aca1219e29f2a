package preload

import "strings"

// CabResolver maps a lower-case cab name to the path of the bundle holding it.
//
// ok reports whether the cab is known. A known cab with an empty path is
// excluded on purpose and gets no preload augmentation.
type CabResolver interface {
	ResolveCab(cabName string) (bundlePath string, ok bool)
}

// CabMap resolves cab names from a fixed table. Keys are matched
// case-insensitively.
type CabMap map[string]string

// ResolveCab implements CabResolver
func (m CabMap) ResolveCab(cabName string) (string, bool) {
	if path, ok := m[cabName]; ok {
		return path, true
	}
	for k, path := range m {
		if strings.EqualFold(k, cabName) {
			return path, true
		}
	}
	return "", false
}

// CabChain asks each resolver in turn and returns the first answer
type CabChain []CabResolver

// ResolveCab implements CabResolver
func (c CabChain) ResolveCab(cabName string) (string, bool) {
	for _, r := range c {
		if path, ok := r.ResolveCab(cabName); ok {
			return path, true
		}
	}
	return "", false
}
