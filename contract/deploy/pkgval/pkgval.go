// Package pkgval validates contract package archives before they are
// accepted into the deploy queue.
package pkgval

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
)

// PackageFileName is the manifest every contract package must ship
const PackageFileName = "package.json"

var ErrInvalidPackage = errors.New("invalid contract package")

// entries rejected wherever they appear in the archive
var blacklistEntries = []string{
	"__MACOSX",
	".git",
	".DS_Store",
}

// Validate checks that content is a readable zip archive shipping the
// package manifest and carrying no escaping or blacklisted entries.
func Validate(content []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return fmt.Errorf("%w: read archive failed.err:%v", ErrInvalidPackage, err)
	}
	if len(reader.File) == 0 {
		return fmt.Errorf("%w: empty archive", ErrInvalidPackage)
	}

	manifestSeen := false
	for _, file := range reader.File {
		name := file.Name
		if err = validateEntryName(name); err != nil {
			return err
		}
		if path.Clean(name) == PackageFileName {
			manifestSeen = true
		}
	}
	if !manifestSeen {
		return fmt.Errorf("%w: %s not found", ErrInvalidPackage, PackageFileName)
	}
	return nil
}

func validateEntryName(name string) error {
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: bad entry path %s", ErrInvalidPackage, name)
	}
	// an entry escaping the package root cleans to a ..-leading path
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: entry escapes package root %s", ErrInvalidPackage, name)
	}
	for _, part := range strings.Split(clean, "/") {
		for _, banned := range blacklistEntries {
			if part == banned {
				return fmt.Errorf("%w: blacklisted entry %s", ErrInvalidPackage, name)
			}
		}
	}
	return nil
}
