package permission

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern is a parsed permission rule of the form Tool(content) or a
// bare Tool name. A bare tool or empty content matches every invocation
// of that tool.
type Pattern struct {
	Raw     string
	Tool    string
	Content string
}

// ParsePattern parses a rule string. Malformed rules (unbalanced
// parentheses) are treated as a bare tool name.
func ParsePattern(raw string) Pattern {
	raw = strings.TrimSpace(raw)
	open := strings.Index(raw, "(")
	if open == -1 || !strings.HasSuffix(raw, ")") {
		return Pattern{Raw: raw, Tool: raw}
	}
	return Pattern{
		Raw:     raw,
		Tool:    strings.TrimSpace(raw[:open]),
		Content: raw[open+1 : len(raw)-1],
	}
}

// ParsePatterns parses a list of rule strings, dropping empty entries.
func ParsePatterns(raw []string) []Pattern {
	patterns := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		patterns = append(patterns, ParsePattern(r))
	}
	return patterns
}

// commandTools take a shell command as their primary argument.
var commandTools = map[string]bool{
	"Bash": true,
}

// pathTools take a file path as their primary argument.
var pathTools = map[string]bool{
	"Read":         true,
	"Edit":         true,
	"Write":        true,
	"Glob":         true,
	"Grep":         true,
	"NotebookRead": true,
	"NotebookEdit": true,
}

// primaryArgumentKeys maps tools to the input field their patterns
// match against.
var primaryArgumentKeys = map[string]string{
	"Bash":         "command",
	"Read":         "file_path",
	"Edit":         "file_path",
	"Write":        "file_path",
	"NotebookRead": "notebook_path",
	"NotebookEdit": "notebook_path",
	"Glob":         "pattern",
	"Grep":         "pattern",
	"WebFetch":     "url",
	"WebSearch":    "query",
}

// PrimaryArgument extracts the string the pattern content is matched
// against from a tool's input.
func PrimaryArgument(tool string, input map[string]interface{}) string {
	if key, ok := primaryArgumentKeys[tool]; ok {
		if s, ok := input[key].(string); ok {
			return s
		}
	}
	for _, key := range []string{"command", "file_path", "path", "pattern", "url"} {
		if s, ok := input[key].(string); ok {
			return s
		}
	}
	return ""
}

// Matches reports whether the pattern covers the given tool invocation.
func (p Pattern) Matches(tool string, input map[string]interface{}) bool {
	if p.Tool != tool {
		return false
	}
	if p.Content == "" {
		return true
	}
	arg := PrimaryArgument(tool, input)
	switch {
	case commandTools[tool]:
		return matchCommand(p.Content, arg)
	case pathTools[tool]:
		return matchPath(p.Content, arg)
	default:
		if prefix, ok := strings.CutSuffix(p.Content, ":*"); ok {
			return strings.HasPrefix(arg, prefix)
		}
		return p.Content == arg
	}
}

// matchCommand matches pattern content against a shell command string.
// A trailing :* does prefix matching; glob metacharacters compile to a
// regular expression where * matches any run and ? one character;
// anything else is an exact match.
func matchCommand(content, command string) bool {
	if prefix, ok := strings.CutSuffix(content, ":*"); ok {
		return strings.HasPrefix(command, prefix)
	}
	if strings.ContainsAny(content, "*?") {
		re, err := regexp.Compile("^" + globToRegexp(content) + "$")
		if err != nil {
			return false
		}
		return re.MatchString(command)
	}
	return content == command
}

// globToRegexp converts command-glob syntax to a regular expression
// body: * becomes .*, ? becomes ., everything else is quoted.
func globToRegexp(glob string) string {
	var sb strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return sb.String()
}

// matchPath matches pattern content against a file path. Glob patterns
// use doublestar semantics (** crosses path separators, * stays within
// a segment). A glob without a path separator also matches the path's
// final segment, so Read(*.ts) covers src/app.ts. Content without glob
// metacharacters requires an exact match.
func matchPath(content, path string) bool {
	if !strings.ContainsAny(content, "*?[") {
		return content == path
	}
	if matched, err := doublestar.Match(content, path); err == nil && matched {
		return true
	}
	if !strings.Contains(content, "/") {
		base := path
		if idx := strings.LastIndex(path, "/"); idx != -1 {
			base = path[idx+1:]
		}
		if matched, err := doublestar.Match(content, base); err == nil && matched {
			return true
		}
	}
	return false
}

// FirstMatch returns the first pattern in order that covers the
// invocation, or nil.
func FirstMatch(patterns []Pattern, tool string, input map[string]interface{}) *Pattern {
	for i := range patterns {
		if patterns[i].Matches(tool, input) {
			return &patterns[i]
		}
	}
	return nil
}
