// Package picker lets a user choose one file of record when a command runs in
// a terminal without arguments.
package picker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

var (
	// ErrNoOptions is returned when there is nothing to pick from.
	ErrNoOptions = errors.New("no options available")
	// ErrCancelled is returned when the user aborts the selection.
	ErrCancelled = errors.New("selection cancelled")
)

// Option represents a selectable entry
type Option struct {
	Value       string
	Description string
}

// Picker selects one option value.
type Picker interface {
	Pick(prompt string, options []Option) (string, error)
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Default returns the fzf picker, falling back to a line prompt on stdin.
func Default() Picker {
	return NewFzf(&Prompt{In: os.Stdin, Out: os.Stderr})
}

// Prompt is a line-oriented picker: the user filters by substring or enters
// the number of an option.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// Pick implements Picker.
func (p *Prompt) Pick(prompt string, options []Option) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}

	reader := bufio.NewReader(p.In)
	current := options
	for {
		fmt.Fprintln(p.Out, prompt)
		fmt.Fprintln(p.Out, strings.Repeat("-", len(prompt)))
		printOptions(p.Out, current)
		fmt.Fprintf(p.Out, "\nFilter or select (1-%d): ", len(current))

		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if err != nil && input == "" {
			if errors.Is(err, io.EOF) {
				return "", ErrCancelled
			}
			return "", fmt.Errorf("failed to read input: %w", err)
		}

		if input == "" {
			current = options
			continue
		}

		if n, convErr := strconv.Atoi(input); convErr == nil {
			if n >= 1 && n <= len(current) {
				return current[n-1].Value, nil
			}
			fmt.Fprintf(p.Out, "Selection %d is out of range (1-%d)\n\n", n, len(current))
			continue
		}

		filtered := Filter(options, input)
		switch len(filtered) {
		case 0:
			fmt.Fprintf(p.Out, "No options match filter: %s\n\n", input)
		case 1:
			fmt.Fprintf(p.Out, "Auto-selecting: %s\n", filtered[0].Value)
			return filtered[0].Value, nil
		default:
			current = filtered
		}
		if err != nil {
			return "", ErrCancelled
		}
	}
}

func printOptions(w io.Writer, options []Option) {
	for i, option := range options {
		fmt.Fprintf(w, "%d. %s", i+1, option.Value)
		if option.Description != "" {
			fmt.Fprintf(w, " - %s", option.Description)
		}
		fmt.Fprintln(w)
	}
}

// Filter returns the options whose value or description contains filter,
// case-insensitively.
func Filter(options []Option, filter string) []Option {
	filter = strings.ToLower(filter)
	var filtered []Option
	for _, option := range options {
		if strings.Contains(strings.ToLower(option.Value), filter) ||
			strings.Contains(strings.ToLower(option.Description), filter) {
			filtered = append(filtered, option)
		}
	}
	return filtered
}
