package gitkv

import (
	"strings"

	"github.com/pkg/errors"
)

// CheckRefName reports whether name is usable as a ref name,
// returning an error wrapping ErrInvalidPath if not.
//
// A ref name is a slash-separated sequence of non-empty components.
// Following git,
// no component may begin with "." or end with ".lock",
// and the name may not contain control characters, spaces,
// or any of ~ ^ : ? * [ \.
func CheckRefName(name string) error {
	if name == "" {
		return errors.Wrap(ErrInvalidPath, "empty ref name")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(" ~^:?*[\\", r) {
			return errors.Wrapf(ErrInvalidPath, "ref name %q contains %q", name, r)
		}
	}
	for _, comp := range strings.Split(name, "/") {
		switch {
		case comp == "":
			return errors.Wrapf(ErrInvalidPath, "ref name %q has an empty component", name)
		case strings.HasPrefix(comp, "."):
			return errors.Wrapf(ErrInvalidPath, "ref name %q has a component beginning with a dot", name)
		case strings.HasSuffix(comp, ".lock"):
			return errors.Wrapf(ErrInvalidPath, "ref name %q has a component ending in .lock", name)
		}
	}
	return nil
}
