package naming

import (
	"path"
	"strings"
)

// OutputPath is the planned location of an optimized image, relative to the
// distribution root. Dir and Base use forward slashes.
type OutputPath struct {
	Dir  string
	Base string
	Ext  string
}

// Rel joins the parts into a slash-separated relative path.
func (o OutputPath) Rel() string {
	return path.Join(o.Dir, o.Base+o.Ext)
}

// TopGroup returns the first directory segment of a slash-separated path
// relative to the scan root. Files directly in the scan root yield ".".
func TopGroup(rel string) string {
	dir := path.Dir(rel)
	if i := strings.IndexByte(dir, '/'); i >= 0 {
		return dir[:i]
	}
	return dir
}

// Plan computes the output path for rel (slash-separated, relative to the
// scan root) under the given top group:
//
//	Dir:  head
//	Base: head + "-" + group + tail
//	Ext:  unchanged
//
// An empty head is passed through, so Base then starts with "-".
func Plan(rel, group string) OutputPath {
	name := path.Base(rel)
	ext := path.Ext(name)
	parts := SplitName(strings.TrimSuffix(name, ext))

	return OutputPath{
		Dir:  parts.Head,
		Base: parts.Head + "-" + group + parts.Tail,
		Ext:  ext,
	}
}

// PlanSource is Plan with the group taken from rel itself.
func PlanSource(rel string) OutputPath {
	return Plan(rel, TopGroup(rel))
}
