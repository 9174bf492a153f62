package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kebairia/dirbak/internal/output"
)

type prompter struct {
	r *bufio.Reader
	w io.Writer
	// interactive is false when stdin is not a terminal.
	interactive bool
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{
		r:           bufio.NewReader(in),
		w:           cmd.OutOrStdout(),
		interactive: output.IsTerminal(in),
	}
}

// ask prints question and returns the trimmed answer line.
func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.w, question)
	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question. Anything but y/yes is no.
func (p *prompter) confirm(question string) bool {
	answer, err := p.ask(question + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}
