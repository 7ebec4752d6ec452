// Package ffmpegcmd builds the encoder invocation that pushes a looped local
// file to a live ingest endpoint.
//
// This layer only constructs commands: no execution, no I/O. It returns
// either an argv (argv[0] is the binary) or a shell-quoted string for logs.
package ffmpegcmd

import (
	"strconv"
	"strings"
)

// Builder constructs argv and shell-safe command strings.
// It is NOT concurrency-safe; treat it as a short-lived value.
type Builder struct {
	args []string // argv including binary at index 0
}

// NewBuilder returns a Builder pre-seeded with the binary name.
func NewBuilder(binary string) *Builder {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Builder{args: []string{binary}}
}

// WithFlag appends a flag and its value if the value is non-empty.
func (b *Builder) WithFlag(flag, val string) *Builder {
	if val != "" {
		b.args = append(b.args, flag, val)
	}
	return b
}

// WithIntFlag appends a flag with a base-10 int value (always emitted).
func (b *Builder) WithIntFlag(flag string, val int) *Builder {
	b.args = append(b.args, flag, strconv.Itoa(val))
	return b
}

// WithSwitch appends a value-less flag.
func (b *Builder) WithSwitch(flag string) *Builder {
	b.args = append(b.args, flag)
	return b
}

// WithString appends a positional argument if non-empty.
func (b *Builder) WithString(arg string) *Builder {
	if arg != "" {
		b.args = append(b.args, arg)
	}
	return b
}

// BuildArgv returns a copy of the argument vector.
func (b *Builder) BuildArgv() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// BuildString returns a single shell-quoted command string.
func (b *Builder) BuildString() string {
	quoted := make([]string, len(b.args))
	for i, a := range b.args {
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shQuote single-quotes s, closing and reopening the quote around each inner one.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
