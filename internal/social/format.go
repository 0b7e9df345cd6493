package social

import "strings"

// FormatList renders a list-valued query result as {item1,item2,...} with no
// trailing delimiter, insertion order preserved. Collaborators parse this
// exact shape; do not change it.
func FormatList(items []string) string {
	return "{" + strings.Join(items, ",") + "}"
}

// ParseList is FormatList's inverse. Anything that does not look like a
// braced list parses as empty.
func ParseList(s string) []string {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return nil
	}
	return strings.Split(inner, ",")
}

// ListLen counts the items of a formatted list without allocating them.
func ListLen(s string) int {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return 0
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return 0
	}
	return strings.Count(inner, ",") + 1
}
