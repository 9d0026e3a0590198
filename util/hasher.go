package util

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// GetFileHash hashes a snapshot or mirrored file and returns the hash as a
// hex string. Symlinks are hashed by their target string.
func GetFileHash(path string) (hash string, err error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%x", sha256.Sum256([]byte(target))), nil
	case !info.Mode().IsRegular():
		return "", ErrUnsupportedType
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return GetHash(file)
}

// GetHash calculates the SHA-256 hash of data from an io.Reader.
// It returns the hash as a hexadecimal string.
func GetHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
