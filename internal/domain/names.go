package domain

import (
	"strings"
	"unicode/utf8"
)

const MaxNameLength = 255

// NormalizeName обрезает пробелы и проверяет имя файла или папки.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", Invalidf("name is required")
	case name == "." || name == "..":
		return "", Invalidf("name %q is reserved", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return "", Invalidf("name %q contains a path separator", name)
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", Invalidf("name is longer than %d characters", MaxNameLength)
	}
	return name, nil
}
