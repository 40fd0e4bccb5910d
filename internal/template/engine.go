package template

import (
	"strings"
	"unicode/utf8"
)

// Render substitutes every recognized placeholder found in tmpl with its
// value. Matching is case-insensitive on the exact bracketed form. Unknown
// bracketed tokens, and recognized ones with no value supplied, are copied
// verbatim. Substituted values are never scanned again.
func Render(tmpl string, values map[Placeholder]string) string {
	if len(values) == 0 || !strings.Contains(tmpl, "[") {
		return tmpl
	}

	var b strings.Builder
	b.Grow(len(tmpl))

	rest := tmpl
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		rest = rest[open:]

		p, size, ok := matchToken(rest)
		if ok {
			if v, has := values[p]; has {
				b.WriteString(v)
				rest = rest[size:]
				continue
			}
		}
		// Not a substitution: keep the bracket and resume after it so a
		// placeholder nested inside ("[[industry]]") still matches.
		b.WriteByte('[')
		rest = rest[1:]
	}

	return b.String()
}

// RenderValues is Render with typed values
func RenderValues(tmpl string, v Values) string {
	return Render(tmpl, v.Map())
}

// ScanResult lists the bracketed tokens of a template
type ScanResult struct {
	Recognized []Placeholder `json:"recognized"`
	Unknown    []string      `json:"unknown"`
}

// Scan reports the distinct recognized placeholders and unknown bracketed
// tokens of tmpl, in order of first appearance.
func Scan(tmpl string) ScanResult {
	res := ScanResult{
		Recognized: []Placeholder{},
		Unknown:    []string{},
	}
	seenP := make(map[Placeholder]bool)
	seenU := make(map[string]bool)

	rest := tmpl
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		rest = rest[open:]

		if p, size, ok := matchToken(rest); ok {
			if !seenP[p] {
				seenP[p] = true
				res.Recognized = append(res.Recognized, p)
			}
			rest = rest[size:]
			continue
		}

		end := strings.IndexAny(rest[1:], "[]")
		if end >= 0 && rest[1+end] == ']' && end > 0 {
			tok := rest[:end+2]
			if !seenU[tok] {
				seenU[tok] = true
				res.Unknown = append(res.Unknown, tok)
			}
			rest = rest[end+2:]
			continue
		}
		rest = rest[1:]
	}

	return res
}

// matchToken reports whether s starts with a recognized placeholder token
// and returns its byte length.
func matchToken(s string) (Placeholder, int, bool) {
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", 0, false
	}
	name := s[1:end]
	for _, p := range Placeholders {
		if strings.EqualFold(name, string(p)) {
			return p, end + 1, true
		}
	}
	return "", 0, false
}

// Truncate shortens s to at most n characters, appending "..." when
// something was cut. n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}
