package sim

import (
	"fmt"
	"regexp"
)

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

var namePattern = regexp.MustCompile(
	`^[a-zA-Z0-9]+(\[[0-9]+\])*(\.[a-zA-Z0-9]+(\[[0-9]+\])*)*$`)

// NameMustBeValid panics if the name is empty or contains characters other
// than letters, digits, dots, and index brackets.
func NameMustBeValid(name string) {
	if name == "" {
		panic("name must not be empty")
	}

	if !namePattern.MatchString(name) {
		panic(fmt.Sprintf("invalid name %q", name))
	}
}
