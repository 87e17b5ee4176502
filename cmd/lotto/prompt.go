package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dreamup/lotto-agent/internal/purchase"
	"golang.org/x/term"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readSecret reads a value from the terminal without echo
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// manualEntryNotice tells the operator to type the PIN on the popup keypad
// while the agent waits
func manualEntryNotice(out io.Writer) func(pin, capturePath string) {
	return func(pin, capturePath string) {
		fmt.Fprintln(out, "⌨️  Keypad digits could not be read.")
		fmt.Fprintf(out, "   Enter PIN %s on the charge popup keypad now.\n", pin)
		if capturePath != "" {
			fmt.Fprintf(out, "   Keypad capture: %s\n", capturePath)
		}
	}
}

// stdinPrompter asks the operator to type the balance shown in the browser
type stdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinPrompter(in io.Reader, out io.Writer) *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(in), out: out}
}

// PromptBalance implements purchase.Prompter
func (p *stdinPrompter) PromptBalance(ctx context.Context) (int, error) {
	fmt.Fprint(p.out, "⌨️  Balance could not be read. Enter it in 원 (e.g. 12,000): ")

	type reply struct {
		line string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- reply{line, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return 0, fmt.Errorf("failed to read balance: %w", r.err)
		}
		v, ok := purchase.ParseAmount(strings.TrimSpace(r.line))
		if !ok {
			return 0, fmt.Errorf("%q is not a usable balance", strings.TrimSpace(r.line))
		}
		return v, nil
	}
}
