package outcome

import (
	"cmp"
	"fmt"
	"regexp"
	"strings"
)

func failed(comment []string, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if len(comment) > 0 && comment[0] != "" {
		msg += ": " + strings.Join(comment, " ")
	}
	return &Failed{Message: msg}
}

// Equal fails unless a == b.
func Equal[T comparable](a, b T, comment ...string) error {
	if a != b {
		return failed(comment, "%#v != %#v", a, b)
	}
	return nil
}

// NotEqual fails if a == b.
func NotEqual[T comparable](a, b T, comment ...string) error {
	if a == b {
		return failed(comment, "%#v == %#v", a, b)
	}
	return nil
}

// In fails unless needle occurs in haystack.
func In(needle, haystack string, comment ...string) error {
	if !strings.Contains(haystack, needle) {
		return failed(comment, "%q not in %q", needle, haystack)
	}
	return nil
}

// NotIn fails if needle occurs in haystack.
func NotIn(needle, haystack string, comment ...string) error {
	if strings.Contains(haystack, needle) {
		return failed(comment, "%q in %q", needle, haystack)
	}
	return nil
}

// Greater fails unless a > b.
func Greater[T cmp.Ordered](a, b T, comment ...string) error {
	if !(a > b) {
		return failed(comment, "%v not greater than %v", a, b)
	}
	return nil
}

// Less fails unless a < b.
func Less[T cmp.Ordered](a, b T, comment ...string) error {
	if !(a < b) {
		return failed(comment, "%v not less than %v", a, b)
	}
	return nil
}

// True fails unless ok.
func True(ok bool, comment ...string) error {
	if !ok {
		return failed(comment, "condition is false")
	}
	return nil
}

// Regex fails unless pattern matches somewhere in text.
func Regex(text, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if !re.MatchString(text) {
		return failed(nil, "can't find %q in %q", pattern, text)
	}
	return nil
}

// First returns the first non-nil error, so independent checks can be
// evaluated together.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
