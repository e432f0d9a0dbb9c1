// Package terminal provides prompt and line-clearing helpers for interactive commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a secret is requested but stdin is not a terminal.
var ErrNotInteractive = errors.New("stdin is not a terminal")

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or 80 when unknown.
func Width(f *os.File) int {
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// ClearPreviousLines erases textLength characters of already printed text
// from w, accounting for wrapping at width columns, plus the empty line the
// cursor moved to when the user pressed Enter.
func ClearPreviousLines(w io.Writer, textLength, width int) {
	if width <= 0 {
		width = 80
	}
	totalLines := int(math.Ceil(float64(textLength) / float64(width)))
	if totalLines < 1 {
		totalLines = 1
	}
	linesToClear := totalLines + 1
	for i := 0; i < linesToClear; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}

// Prompter reads answers from in and writes prompts to out.
type Prompter struct {
	In  *os.File
	Out io.Writer

	reader *bufio.Reader
}

// NewPrompter returns a prompter on stdin/stderr.
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

// Line prints prompt and returns the trimmed line typed by the user.
func (p *Prompter) Line(prompt string) (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	fmt.Fprint(p.Out, prompt)
	s, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// Secret prints prompt and reads a line without echo. The typed value is
// never printed; a newline is written after it so the next output starts
// on a fresh line.
func (p *Prompter) Secret(prompt string) (string, error) {
	if !IsInteractive(p.In) {
		return "", ErrNotInteractive
	}
	fmt.Fprint(p.Out, prompt)
	b, err := term.ReadPassword(int(p.In.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
