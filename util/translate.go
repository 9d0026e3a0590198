package util

import (
	"path"
	"path/filepath"
	"strings"
)

// Translator maps virtual paths seen by filesystem clients onto the mirror
// directory that backs the mount. It holds no state besides the root.
type Translator struct {
	root string
}

// NewTranslator returns a Translator rooted at root. The root is cleaned but
// not resolved; callers pass an absolute path.
func NewTranslator(root string) Translator {
	return Translator{root: filepath.Clean(root)}
}

// Root returns the mirror root.
func (t Translator) Root() string {
	return t.root
}

// Translate returns root + virtual. The virtual path must begin with a
// separator and may not climb out of the root.
func (t Translator) Translate(virtual string) (string, error) {
	if virtual == "" || virtual[0] != '/' {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(virtual, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	cleaned := path.Clean(virtual)
	if cleaned == "/" {
		return t.root, nil
	}
	return t.root + filepath.FromSlash(cleaned), nil
}

// Join translates the child name of a virtual directory.
func (t Translator) Join(virtualDir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return "", ErrInvalidPath
	}
	return t.Translate(path.Join(virtualDir, name))
}

// Relative is the inverse of Translate for paths below the root.
func (t Translator) Relative(concrete string) (string, error) {
	rel, err := filepath.Rel(t.root, filepath.Clean(concrete))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}
