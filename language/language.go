// Package language defines how submitted sources are compiled and run.
package language

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Language identifies a supported source language
type Language int

// Supported languages
const (
	Invalid Language = iota
	C
	Python
)

var languageToString = []string{
	"Invalid",
	"C",
	"Python",
}

// ErrUnsupported is returned when parsing an unknown language name
var ErrUnsupported = errors.New("unsupported language")

func (l Language) String() string {
	li := int(l)
	if li < 0 || li >= len(languageToString) {
		return languageToString[0]
	}
	return languageToString[li]
}

// Parse converts a language name (case-insensitive) to Language
func Parse(s string) (Language, error) {
	for i, n := range languageToString[1:] {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return Language(i + 1), nil
		}
	}
	return Invalid, fmt.Errorf("%w: %s", ErrUnsupported, s)
}

// MarshalJSON encodes the language as its name
func (l Language) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes the language from its name
func (l *Language) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Placeholders replaced inside ExecParam arguments
const (
	SourcePlaceholder = "{source}"
	BinaryPlaceholder = "{binary}"
)

// ExecParam defines specs to compile / run program
type ExecParam struct {
	SourceExt   string
	Image       string   // container image used by the docker launcher
	CompileArgs []string // empty for interpreted languages
	RunArgs     []string

	// StderrFails makes a run that writes to stderr fail even when it
	// exits with code 0
	StderrFails bool
}

// Compiled reports whether the language needs a compile step
func (p ExecParam) Compiled() bool {
	return len(p.CompileArgs) > 0
}

// Expand substitutes the source / binary placeholders in args
func Expand(args []string, source, binary string) []string {
	rt := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.ReplaceAll(a, SourcePlaceholder, source)
		a = strings.ReplaceAll(a, BinaryPlaceholder, binary)
		rt = append(rt, a)
	}
	return rt
}

// Table holds the exec params for each language
type Table struct {
	mu     sync.RWMutex
	params map[Language]ExecParam
}

// Default returns the built-in table for gcc and python3
func Default() *Table {
	t := &Table{params: make(map[Language]ExecParam)}
	t.Set(C, ExecParam{
		SourceExt:   ".c",
		Image:       "gcc:13",
		CompileArgs: []string{"gcc", "-O2", "-std=c11", "-o", BinaryPlaceholder, SourcePlaceholder, "-lm"},
		RunArgs:     []string{"./" + BinaryPlaceholder},
	})
	t.Set(Python, ExecParam{
		SourceExt: ".py",
		Image:     "python:3.11-slim",
		RunArgs:   []string{"python3", SourcePlaceholder},
	})
	return t
}

// Get returns the exec param for the language
func (t *Table) Get(l Language) (ExecParam, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.params[l]
	return p, ok
}

// Set registers or replaces the exec param for the language
func (t *Table) Set(l Language, p ExecParam) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.params[l] = p
}

// List returns the registered languages in order
func (t *Table) List() []Language {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rt := make([]Language, 0, len(t.params))
	for l := range t.params {
		rt = append(rt, l)
	}
	slices.Sort(rt)
	return rt
}

// Images returns the distinct container images of the table
func (t *Table) Images() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rt := make([]string, 0, len(t.params))
	for _, p := range t.params {
		if p.Image != "" && !slices.Contains(rt, p.Image) {
			rt = append(rt, p.Image)
		}
	}
	slices.Sort(rt)
	return rt
}
