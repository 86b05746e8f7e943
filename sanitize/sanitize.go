// Package sanitize removes host file system details from compiler and
// runtime diagnostics before they are shown to the submitter.
package sanitize

import (
	"regexp"
	"strings"
)

// Token replaces every file name or path found in a diagnostic
const Token = "code"

var (
	// in "/tmp/x/a.py": / in '/tmp/a.c':
	inPathRe = regexp.MustCompile(`(?i)\bin\s+['"][^'"\n]*['"]:`)

	// absolute or ./ ../ ~/ rooted paths, quoted or bare, and relative
	// paths ending in a source / binary extension. A path has to start a
	// token so that "a/b" or "%d\n" inside echoed source lines survive.
	// Segments following a closing quote ('/a'/b) belong to the path.
	pathRe = regexp.MustCompile(`(^|[\s'"(=])['"]?(?:(?:[A-Za-z]:|~|\.{1,2})?(?:[/\\][\w.\-]+)+|[\w.\-]+(?:[/\\][\w.\-]+)+\.(?:py|c|h|o|out|exe|in))['"]?(?:[/\\][\w.\-]+)*`)

	// workspace generated names (<key>-<nanos>-<id>[.ext]) and the
	// usual scratch names
	tempNameRe = regexp.MustCompile(`['"]?(?:[\w\-]+-\d{6,}-[A-Z2-7]{8,}(?:\.\w+)?|\b(?:temp|tmp|main|solution)\w*\.(?:py|c|out|exe|in)\b)['"]?`)

	// File code, line 3 -> line 3
	fileLineRe = regexp.MustCompile(`(?i)\bfile\s+` + Token + `\s*,\s*line\s+(\d+)`)

	// LINE 3 / line  3 -> line 3
	lineRe = regexp.MustCompile(`(?i)\bline\s+(\d+)`)
)

// Sanitize replaces file paths and generated file names with "code",
// drops file qualifiers from "line N" references and collapses
// `in <path>:` to `in code:`.
//
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(s string) string {
	// a rewrite can expose a new match, e.g. the tail of a partly quoted
	// path, so rewrite until nothing changes. Every changing pass removes
	// a separator or a quote or shortens s, which bounds the loop.
	for range maxPasses {
		next := rewrite(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

const maxPasses = 16

func rewrite(s string) string {
	if s == "" {
		return ""
	}
	s = inPathRe.ReplaceAllString(s, "in "+Token+":")
	s = pathRe.ReplaceAllString(s, "${1}"+Token)
	s = tempNameRe.ReplaceAllString(s, Token)
	s = fileLineRe.ReplaceAllString(s, "line $1")
	s = lineRe.ReplaceAllString(s, "line $1")
	return s
}

// Error sanitizes the message of err, nil gives an empty string
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}

// Truncate limits s to max bytes, marking the cut with "..."
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	// do not split an utf-8 sequence
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " \n") + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
