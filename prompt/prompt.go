// Package prompt provides interfaces.SecretInput implementations: masked terminal
// input, an environment variable override, and a scripted source for tests.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/ruteri/key-custody/interfaces"
	"golang.org/x/term"
)

// ErrNoTerminal is returned when no terminal is available for masked input.
var ErrNoTerminal = errors.New("no terminal available for secret input")

// Terminal reads secrets from the controlling terminal with echo disabled.
// Prompts are written to out, normally stderr, so stdout stays clean for tokens.
type Terminal struct {
	out io.Writer
}

// NewTerminal creates a terminal input writing prompts to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// ReadSecret prints prompt and reads a line without echo. When stdin is piped it
// falls back to /dev/tty so secrets are never read from a pipe by accident.
func (t *Terminal) ReadSecret(prompt string) ([]byte, error) {
	fmt.Fprint(t.out, prompt)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if runtime.GOOS == "windows" {
			return nil, fmt.Errorf("%w: stdin is not a terminal", ErrNoTerminal)
		}

		tty, err := os.Open("/dev/tty")
		if err != nil {
			return nil, fmt.Errorf("%w: stdin is piped and /dev/tty is not available", ErrNoTerminal)
		}
		defer tty.Close()
		fd = int(tty.Fd())
	}

	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(t.out)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	return secret, nil
}

// Env returns the value of an environment variable when it is set, and defers to
// next otherwise. Intended for unattended load, never for setup.
type Env struct {
	name string
	next interfaces.SecretInput
}

// NewEnv creates an environment override in front of next.
func NewEnv(name string, next interfaces.SecretInput) *Env {
	return &Env{name: name, next: next}
}

// ReadSecret returns the environment value or asks next.
func (e *Env) ReadSecret(prompt string) ([]byte, error) {
	if value, ok := os.LookupEnv(e.name); ok && value != "" {
		return []byte(value), nil
	}
	return e.next.ReadSecret(prompt)
}

// ErrScriptExhausted is returned when a Scripted input runs out of answers.
var ErrScriptExhausted = errors.New("scripted input exhausted")

// Scripted replays canned answers in order and records the prompts it was shown.
type Scripted struct {
	mu      sync.Mutex
	answers [][]byte
	prompts []string
}

// NewScripted creates a scripted input answering with answers in order.
func NewScripted(answers ...string) *Scripted {
	s := &Scripted{}
	for _, answer := range answers {
		s.answers = append(s.answers, []byte(answer))
	}
	return s
}

// ReadSecret returns a copy of the next answer, since callers wipe what they receive.
func (s *Scripted) ReadSecret(prompt string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return nil, ErrScriptExhausted
	}

	answer := s.answers[0]
	s.answers = s.answers[1:]

	out := make([]byte, len(answer))
	copy(out, answer)
	memguard.WipeBytes(answer)
	return out, nil
}

// Prompts returns the prompts shown so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.prompts...)
}

// Remaining returns the number of unused answers.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.answers)
}
