// Package instrument rewrites JavaScript source so that each executable
// line reports a snapshot of program state to an injected recorder. The
// transform is a pure text pass over physical lines: it is total over any
// input and never fails. Syntactically invalid source is passed through and
// surfaces only when the script host evaluates the result.
package instrument

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the outcome of instrumenting one program.
type Result struct {
	// Code is the instrumented program: recorder preamble followed by the
	// rewritten source.
	Code string
	// Hooked is the number of source lines that received a step hook.
	Hooked int
	// LastLine is the 1-based number of the last hooked line, 0 when no
	// line was hooked.
	LastLine int
}

const ident = `[A-Za-z_$][A-Za-z0-9_$]*`

var (
	funcDeclRe = regexp.MustCompile(`^function\s+(` + ident + `)\s*\(([^)]*)\)\s*\{$`)
	returnRe   = regexp.MustCompile(`^return\b\s*(.*?);?$`)
	declRe     = regexp.MustCompile(`^(?:let|var|const)\s+(.+?);?$`)
	assignRe   = regexp.MustCompile(`^(` + ident + `)\s*(?:=[^=>]|\+=|-=|\*=|/=|%=|\+\+|--)`)
	forDeclRe  = regexp.MustCompile(`^for\s*\(\s*(?:let|var)\s+(` + ident + `)`)
	identRe    = regexp.MustCompile(`^\s*(` + ident + `)`)
	punctRe    = regexp.MustCompile(`^[{}();,\s]*$`)
)

// Instrument rewrites source line by line. Each executable line is preceded
// by a __tr.step(N) hook; declaration, assignment, function and return
// lines additionally register bindings and frame transitions with the
// recorder. A trailing hook captures the state after the final statement.
func Instrument(source string) Result {
	lines := strings.Split(source, "\n")

	var b strings.Builder
	b.WriteString(preamble)

	res := Result{}
	depth := 0
	// Brace depth of each open traced function's body, innermost last.
	var funcBodies []int

	for i, line := range lines {
		n := i + 1
		code, opens, closes := scanLine(line)
		trimmed := strings.TrimSpace(code)
		indent := leadingWhitespace(line)

		// A lone closing brace at the body depth of the innermost traced
		// function ends that function; pop its frame for the fall-through
		// (no explicit return) path.
		if isClosing(trimmed) && len(funcBodies) > 0 && depth == funcBodies[len(funcBodies)-1] {
			fmt.Fprintf(&b, "%s__tr.leave();\n", indent)
			funcBodies = funcBodies[:len(funcBodies)-1]
		}

		if hookable(trimmed) {
			fmt.Fprintf(&b, "%s__tr.step(%d);\n", indent, n)
			res.Hooked++
			res.LastLine = n
		}

		switch {
		case len(funcBodies) > 0 && returnRe.MatchString(trimmed):
			// Route the return value through leave so the frame pops
			// exactly when the call completes.
			expr := returnRe.FindStringSubmatch(trimmed)[1]
			if expr == "" {
				fmt.Fprintf(&b, "%sreturn __tr.leave();\n", indent)
			} else {
				fmt.Fprintf(&b, "%sreturn __tr.leave((%s));\n", indent, expr)
			}
		default:
			b.WriteString(line)
			b.WriteByte('\n')
		}

		depth += opens - closes

		// Registration calls are emitted after the line so the bindings
		// they report already hold their new values.
		switch {
		case funcDeclRe.MatchString(trimmed):
			m := funcDeclRe.FindStringSubmatch(trimmed)
			name, params := m[1], m[2]
			label := fmt.Sprintf("%s(%s)", name, strings.TrimSpace(params))
			fmt.Fprintf(&b, "%s__tr.enter(%q);\n", indent, label)
			for _, p := range splitTopLevel(params) {
				if pm := identRe.FindStringSubmatch(p); pm != nil {
					fmt.Fprintf(&b, "%s__tr.decl(%q, %s);\n", indent, pm[1], pm[1])
				}
			}
			funcBodies = append(funcBodies, depth)
		case forDeclRe.MatchString(trimmed) && strings.HasSuffix(trimmed, "{"):
			name := forDeclRe.FindStringSubmatch(trimmed)[1]
			fmt.Fprintf(&b, "%s__tr.decl(%q, %s);\n", indent, name, name)
		case declRe.MatchString(trimmed) && !strings.HasSuffix(trimmed, "{"):
			body := declRe.FindStringSubmatch(trimmed)[1]
			for _, d := range splitTopLevel(body) {
				if dm := identRe.FindStringSubmatch(d); dm != nil {
					fmt.Fprintf(&b, "%s__tr.decl(%q, %s);\n", indent, dm[1], dm[1])
				}
			}
		case assignRe.MatchString(trimmed) && !strings.HasSuffix(trimmed, "{"):
			name := assignRe.FindStringSubmatch(trimmed)[1]
			fmt.Fprintf(&b, "%s__tr.set(%q, %s);\n", indent, name, name)
		}
	}

	// Capture the state left behind by the last executed statement.
	if res.Hooked > 0 {
		fmt.Fprintf(&b, "__tr.step(%d);\n", res.LastLine)
	}

	res.Code = b.String()
	return res
}

// hookable reports whether a line should record a step. Blank lines,
// comment-only lines, bare punctuation, and continuation keywords that
// cannot be preceded by a statement are skipped.
func hookable(trimmed string) bool {
	switch {
	case trimmed == "",
		strings.HasPrefix(trimmed, "//"),
		strings.HasPrefix(trimmed, "/*"),
		strings.HasPrefix(trimmed, "*"),
		strings.HasPrefix(trimmed, "}"),
		strings.HasPrefix(trimmed, "else"),
		strings.HasPrefix(trimmed, "case "),
		strings.HasPrefix(trimmed, "default:"),
		strings.HasPrefix(trimmed, "catch"),
		strings.HasPrefix(trimmed, "finally"),
		punctRe.MatchString(trimmed):
		return false
	}
	return true
}

func isClosing(trimmed string) bool {
	return trimmed == "}" || trimmed == "};"
}

// scanLine strips a trailing line comment and counts braces, ignoring
// anything inside string literals. Block comments spanning lines are not
// tracked; they only matter for pathological inputs the host will reject.
func scanLine(line string) (code string, opens, closes int) {
	var quote byte
	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '{':
			opens++
		case '}':
			closes++
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return line[:i], opens, closes
			}
		}
	}
	return line, opens, closes
}

// splitTopLevel splits on commas that sit outside any brackets or string
// literals, so multi-declarator lines and parameter lists parse correctly.
// Segments are trimmed and empty ones dropped.
func splitTopLevel(s string) []string {
	var parts []string
	var quote byte
	escaped := false
	bracketDepth := 0
	start := 0
	emit := func(end int) {
		if part := strings.TrimSpace(s[start:end]); part != "" {
			parts = append(parts, part)
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[', '{':
			bracketDepth++
		case ')', ']', '}':
			bracketDepth--
		case ',':
			if bracketDepth == 0 {
				emit(i)
				start = i + 1
			}
		}
	}
	emit(len(s))
	return parts
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
