package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readSecret prompts for a value without echo when stdin is a terminal and
// reads one line otherwise.
func (r *runner) readSecret(prompt string) (string, error) {
	fmt.Fprint(r.opts.Stderr, prompt)
	defer fmt.Fprintln(r.opts.Stderr)

	if f, ok := r.opts.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return r.readLine()
}

func (r *runner) readLine() (string, error) {
	if r.lines == nil {
		r.lines = bufio.NewReader(r.opts.Stdin)
	}
	line, err := r.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
