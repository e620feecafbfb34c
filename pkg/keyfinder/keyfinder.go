// Package keyfinder extracts countable keys from lines of text.
//
// A Policy appends the key for a line to a caller-supplied scratch buffer and
// reports whether the line produced a key at all. Policies are pure: they
// hold no per-call state, so one policy may be shared by every scan worker
// while each worker owns its scratch buffer.
package keyfinder

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPolicy is returned by New for unusable options.
var ErrInvalidPolicy = errors.New("keyfinder: invalid policy")

// Policy maps a line to a key.
type Policy interface {
	// AppendKey appends the key for line to dst and returns the extended
	// buffer. ok is false when the line contributes nothing.
	AppendKey(dst, line []byte) (key []byte, ok bool)
}

// PolicyFunc adapts an ordinary function to Policy.
type PolicyFunc func(dst, line []byte) ([]byte, bool)

// AppendKey calls f(dst, line).
func (f PolicyFunc) AppendKey(dst, line []byte) ([]byte, bool) {
	return f(dst, line)
}

// Identity uses every line, unchanged, as its own key.
var Identity Policy = PolicyFunc(func(dst, line []byte) ([]byte, bool) {
	return append(dst, line...), true
})

// Options configures the policy built by New. The zero value is equivalent
// to Identity.
type Options struct {
	// Fields lists 1-based field numbers forming the key, in output order.
	// Empty means the whole line.
	Fields []int

	// FieldSeparator splits fields on this literal string. Empty splits on
	// runs of spaces and tabs.
	FieldSeparator string

	// Grep lists regexps a line must all match.
	Grep []string

	// VGrep lists regexps of which a line must match none.
	VGrep []string

	// Sed lists s/regexp/replacement/ edits applied to the key in order.
	Sed []string
}

type substitution struct {
	re     *regexp.Regexp
	repl   []byte
	global bool
}

// apply rewrites the first match in key, or every match when global is set,
// as sed does.
func (s substitution) apply(key []byte) []byte {
	if s.global {
		return s.re.ReplaceAll(key, s.repl)
	}

	m := s.re.FindSubmatchIndex(key)
	if m == nil {
		return key
	}

	out := make([]byte, 0, len(key)+len(s.repl))
	out = append(out, key[:m[0]]...)
	out = s.re.Expand(out, s.repl, key, m)

	return append(out, key[m[1]:]...)
}

// Finder is the configurable Policy built by New.
type Finder struct {
	fields   []int
	maxField int
	sep      []byte
	grep     []*regexp.Regexp
	vgrep    []*regexp.Regexp
	sed      []substitution
}

// New compiles opts into a Finder.
func New(opts Options) (*Finder, error) {
	f := &Finder{sep: []byte(opts.FieldSeparator)}

	for _, field := range opts.Fields {
		if field < 1 {
			return nil, fmt.Errorf("%w: field numbers start at 1, got %d", ErrInvalidPolicy, field)
		}

		f.fields = append(f.fields, field)
		f.maxField = max(f.maxField, field)
	}

	grep, err := compileAll(opts.Grep)
	if err != nil {
		return nil, fmt.Errorf("%w: grep: %w", ErrInvalidPolicy, err)
	}

	vgrep, err := compileAll(opts.VGrep)
	if err != nil {
		return nil, fmt.Errorf("%w: vgrep: %w", ErrInvalidPolicy, err)
	}

	f.grep = grep
	f.vgrep = vgrep

	for _, expr := range opts.Sed {
		sub, parseErr := parseSed(expr)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: sed %q: %w", ErrInvalidPolicy, expr, parseErr)
		}

		f.sed = append(f.sed, sub)
	}

	return f, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}

		out = append(out, re)
	}

	return out, nil
}

var (
	errSedPrefix = errors.New(`expression must look like s/regexp/replacement/`)
	errSedFlags  = errors.New(`only the "g" flag is supported`)
)

// parseSed parses s<d>regexp<d>replacement<d>[g] for any single-byte
// delimiter d. Without g only the first match is replaced. Replacements use
// regexp.Expand syntax ($1, ${name}).
func parseSed(expr string) (substitution, error) {
	if len(expr) < 4 || expr[0] != 's' {
		return substitution{}, errSedPrefix
	}

	parts := strings.Split(expr[2:], expr[1:2])
	if len(parts) != 3 {
		return substitution{}, errSedPrefix
	}

	if parts[2] != "" && parts[2] != "g" {
		return substitution{}, errSedFlags
	}

	re, err := regexp.Compile(parts[0])
	if err != nil {
		return substitution{}, err
	}

	return substitution{re: re, repl: []byte(parts[1]), global: parts[2] == "g"}, nil
}

// AppendKey implements Policy.
func (f *Finder) AppendKey(dst, line []byte) ([]byte, bool) {
	for _, re := range f.grep {
		if !re.Match(line) {
			return dst, false
		}
	}

	for _, re := range f.vgrep {
		if re.Match(line) {
			return dst, false
		}
	}

	start := len(dst)

	if len(f.fields) == 0 {
		dst = append(dst, line...)
	} else {
		var ok bool

		dst, ok = f.appendFields(dst, line)
		if !ok {
			return dst[:start], false
		}
	}

	if len(f.sed) == 0 {
		return dst, true
	}

	key := dst[start:]
	for _, sub := range f.sed {
		key = sub.apply(key)
	}

	return append(dst[:start], key...), true
}

// appendFields appends the selected fields, joined by a space.
func (f *Finder) appendFields(dst, line []byte) ([]byte, bool) {
	var split [][]byte
	if len(f.sep) > 0 {
		split = bytes.Split(line, f.sep)
	} else {
		split = bytes.FieldsFunc(line, isBlank)
	}

	if len(split) < f.maxField {
		return dst, false
	}

	for i, field := range f.fields {
		if i > 0 {
			dst = append(dst, ' ')
		}

		dst = append(dst, split[field-1]...)
	}

	return dst, true
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t'
}

// ParseFields parses a comma-separated list of 1-based field numbers such as
// "1,4,7". An empty string yields no fields.
func ParseFields(list string) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	var fields []int

	for part := range strings.SplitSeq(list, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: bad field %q", ErrInvalidPolicy, part)
		}

		fields = append(fields, n)
	}

	return fields, nil
}
