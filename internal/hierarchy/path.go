package hierarchy

import (
	"slices"
	"strings"
)

// Separator joins the names of a game object's ancestors
const Separator = "/"

// Parent returns the parent path of name, or false for a root
func Parent(name string) (string, bool) {
	i := strings.LastIndex(name, Separator)
	if i < 0 {
		return "", false
	}
	return name[:i], true
}

// Depth returns how many levels name sits below ancestor, or -1 when
// ancestor is neither name nor one of its ancestors.
func Depth(ancestor, name string) int {
	if name == ancestor {
		return 0
	}
	if !strings.HasPrefix(name, ancestor+Separator) {
		return -1
	}
	return strings.Count(name[len(ancestor):], Separator)
}

// IsDescendant reports whether name lies strictly below ancestor
func IsDescendant(ancestor, name string) bool {
	return Depth(ancestor, name) > 0
}

// HighestNodes returns the names that are not descendants of any other name
// in the input, sorted and without duplicates.
func HighestNodes(names []string) []string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	// A descendant always sorts after its ancestor, so one pass against the
	// roots kept so far is enough.
	var result []string
	for _, name := range sorted {
		covered := false
		for _, root := range result {
			if IsDescendant(root, name) {
				covered = true
				break
			}
		}
		if !covered {
			result = append(result, name)
		}
	}
	return result
}

// FindAncestor returns the entry of roots that equals name or is one of its
// ancestors, with the number of levels name sits below it. When several
// entries qualify the closest one wins.
func FindAncestor(roots []string, name string) (ancestor string, depth int, ok bool) {
	depth = -1
	for _, root := range roots {
		d := Depth(root, name)
		if d < 0 {
			continue
		}
		if !ok || d < depth {
			ancestor, depth, ok = root, d, true
		}
	}
	if !ok {
		return "", 0, false
	}
	return ancestor, depth, true
}
