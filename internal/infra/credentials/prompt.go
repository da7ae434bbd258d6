package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"clipforge/internal/generation"
)

// TerminalPrompter asks for the API key on a terminal without echoing it.
// When In is not a terminal the key is read as a plain line, which keeps
// piping (`echo $KEY | clipforge generate ...`) working.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
	// Persist, when set, stores the entered key for later runs.
	Persist func(ctx context.Context, key string) error
}

func (p TerminalPrompter) RequestCredential(ctx context.Context) (generation.Credential, error) {
	in := p.In
	if in == nil {
		in = os.Stdin
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	fmt.Fprint(out, "Gemini API key (billing-enabled project): ")
	var key string
	if term.IsTerminal(int(in.Fd())) {
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return generation.Credential{}, fmt.Errorf("read api key: %w", err)
		}
		key = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return generation.Credential{}, fmt.Errorf("read api key: %w", err)
		}
		key = line
	}

	cred := generation.NewCredential(strings.TrimSpace(key))
	if cred.Empty() || p.Persist == nil {
		return cred, nil
	}
	if err := p.Persist(ctx, cred.Key()); err != nil {
		fmt.Fprintf(out, "warning: key not saved: %v\n", err)
	}
	return cred, nil
}

var _ generation.CredentialRequester = TerminalPrompter{}
