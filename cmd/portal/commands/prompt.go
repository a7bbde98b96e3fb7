package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/go-portal-client/auth"
	"github.com/pkg/errors"
)

// prompter reads answers line by line from the command's input.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask returns value when set, otherwise prompts for it.
func (p *prompter) ask(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrapf(err, "read %s", strings.ToLower(label))
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}

// Describe turns an action error into the text shown to the user.
func Describe(err error) string {
	var ue *auth.UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	var ve *auth.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}
