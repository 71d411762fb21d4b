package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoPrompt is returned when an action needs terminal input but none is
// attached.
var ErrNoPrompt = errors.New("no terminal attached for input")

// Prompter reads single-line answers from the terminal. The window has no
// text input, so subject names and cascade paths are asked for here.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a Prompter reading from in and asking on out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer.
func (p *Prompter) Ask(question string) (string, error) {
	if p == nil {
		return "", ErrNoPrompt
	}

	fmt.Fprintf(p.out, "%s: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
