package input

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// Terminal is the terminal used for input. If nil, stdin is used.
var Terminal *term.Terminal

// ReadLine reads a line from the input without the trailing '\n'.
func ReadLine(prompt string) (string, error) {
	if Terminal != nil {
		if _, err := Terminal.Write([]byte(prompt)); err != nil {
			return "", err
		}
		raw, err := Terminal.ReadLine()
		return strings.TrimRight(raw, "\n"), err
	}
	fmt.Print(prompt)
	raw, err := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimRight(raw, "\r\n"), err
}

// ReadPassword reads a password with prompt, without echoing it back.
// Piped input falls back to a plain line read.
func ReadPassword(prompt string) (string, error) {
	if Terminal != nil {
		return Terminal.ReadPassword(prompt)
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return ReadLine(prompt)
	}
	fmt.Print(prompt)
	rawPass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(rawPass), "\r\n"), nil
}
