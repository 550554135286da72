package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/metcalfc/shu/internal/book"
)

// compilePattern parses a search typed by the user. A pattern with no
// upper case letters matches case-insensitively.
func compilePattern(q string) (*regexp.Regexp, error) {
	if q == "" {
		return nil, fmt.Errorf("empty search pattern")
	}
	if strings.ToLower(q) == q {
		q = "(?i)" + q
	}
	re, err := regexp.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("bad search pattern: %w", err)
	}
	return re, nil
}

// searchStart is where a search resumes. The first search starts at the top
// of the page; a repeated forward search steps past the previous hit.
func searchStart(anchor book.LogicalPosition, last *book.LogicalPosition, forward bool) book.LogicalPosition {
	if last == nil {
		return anchor
	}
	from := *last
	if forward {
		from.Offset++
	}
	return from
}
