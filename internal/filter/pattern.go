package filter

import (
	"regexp"
	"strings"
)

// scope restricts the node types a pattern can match.
type scope int

const (
	scopeAny scope = iota
	scopeFile
	scopeDir
)

// pattern is a compiled glob that can match relative paths.
type pattern struct {
	re       *regexp.Regexp
	original string
	anchored bool  // pattern starts with / or contains /
	scope    scope // which node types the pattern applies to
}

// compile converts an rsync-style glob into a matcher. A trailing slash
// forces directory scope regardless of sc.
func compile(glob string, sc scope) (*pattern, error) {
	p := &pattern{original: glob, scope: sc}

	// Trailing / means directory-only.
	if strings.HasSuffix(glob, "/") {
		p.scope = scopeDir
		glob = strings.TrimSuffix(glob, "/")
	}

	// Leading / means anchored to root.
	if strings.HasPrefix(glob, "/") {
		p.anchored = true
		glob = strings.TrimPrefix(glob, "/")
	} else if strings.Contains(glob, "/") {
		// Contains a / but doesn't start with / — still anchored per rsync rules.
		p.anchored = true
	}

	reStr := globRegex(glob)

	if p.anchored {
		// Match from the start of the relative path.
		reStr = "^" + reStr + "$"
	} else {
		// Match against basename or any path suffix.
		reStr = "(^|/)" + reStr + "$"
	}

	re, err := regexp.Compile(reStr)
	if err != nil {
		return nil, err
	}
	p.re = re
	return p, nil
}

// match tests whether a relative path matches this pattern.
func (p *pattern) match(relPath string, isDir bool) bool {
	switch p.scope {
	case scopeDir:
		if !isDir {
			return false
		}
	case scopeFile:
		if isDir {
			return false
		}
	}
	return p.re.MatchString(relPath)
}

// globRegex converts a glob pattern to a regex string.
func globRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); {
		switch glob[i] {
		case '*':
			i += writeStar(&b, glob[i:])
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			i += writeClass(&b, glob[i:])
		default:
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
			i++
		}
	}
	return b.String()
}

// writeStar emits the regex for the star run opening rest and returns the
// number of glob bytes consumed. ** crosses path separators, * does not.
func writeStar(b *strings.Builder, rest string) int {
	switch {
	case strings.HasPrefix(rest, "**/"):
		b.WriteString("(.*/)?")
		return 3
	case strings.HasPrefix(rest, "**"):
		b.WriteString(".*")
		return 2
	default:
		b.WriteString("[^/]*")
		return 1
	}
}

// writeClass emits the character class opening rest, translating glob's !
// negation to regex ^. An unterminated class degrades to a literal bracket.
func writeClass(b *strings.Builder, rest string) int {
	j := 1
	if j < len(rest) && rest[j] == '!' {
		j++
	}
	if j < len(rest) && rest[j] == ']' {
		// A ] right after the opening is a class member, not the close.
		j++
	}
	for j < len(rest) && rest[j] != ']' {
		j++
	}
	if j == len(rest) {
		b.WriteString(`\[`)
		return 1
	}

	cls := rest[1:j]
	if strings.HasPrefix(cls, "!") {
		cls = "^" + cls[1:]
	}
	b.WriteString("[" + cls + "]")
	return j + 1
}
