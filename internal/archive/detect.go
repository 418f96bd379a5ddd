package archive

import (
	"net/url"
	"strings"
)

// Kind identifies an archive format.
type Kind int

const (
	None Kind = iota
	Zip
	TarGz
)

func (k Kind) String() string {
	switch k {
	case Zip:
		return "zip"
	case TarGz:
		return "tar.gz"
	default:
		return "none"
	}
}

// Detect classifies a resource name or URL by its suffix. Query strings
// and fragments are ignored and the comparison is case-insensitive.
// Content is never inspected.
func Detect(name string) Kind {
	if u, err := url.Parse(name); err == nil && u.Scheme != "" {
		name = u.Path
	} else if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz
	default:
		return None
	}
}
