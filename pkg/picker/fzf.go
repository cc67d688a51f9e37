package picker

import (
	"fmt"
	"strings"

	fzf "github.com/junegunn/fzf/src"
)

const separator = "  │  "

// FzfRunner runs fzf with parsed options
type FzfRunner interface {
	Run(opts *fzf.Options) (int, error)
}

type defaultFzfRunner struct{}

func (defaultFzfRunner) Run(opts *fzf.Options) (int, error) {
	return fzf.Run(opts)
}

// FzfPicker picks with the embedded fzf finder. When fzf cannot start, the
// fallback picker is used.
type FzfPicker struct {
	runner   FzfRunner
	fallback Picker
}

// NewFzf creates an fzf picker with the given fallback, which may be nil.
func NewFzf(fallback Picker) *FzfPicker {
	return &FzfPicker{runner: defaultFzfRunner{}, fallback: fallback}
}

// NewFzfWithRunner creates an fzf picker with a custom runner (for testing)
func NewFzfWithRunner(runner FzfRunner, fallback Picker) *FzfPicker {
	return &FzfPicker{runner: runner, fallback: fallback}
}

// Pick implements Picker.
func (f *FzfPicker) Pick(prompt string, options []Option) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}

	opts, err := fzf.ParseOptions(true, []string{
		"--prompt=" + prompt + " ",
		"--height=40%",
		"--layout=reverse",
		"--no-multi",
		"--cycle",
		"--tiebreak=length",
		"--no-mouse",
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse fzf options: %w", err)
	}

	input := make(chan string, len(options))
	for _, option := range options {
		input <- displayText(option)
	}
	close(input)

	output := make(chan string, 1)
	opts.Input = input
	opts.Output = output

	code, err := f.runner.Run(opts)
	close(output)
	if err != nil {
		if f.fallback != nil {
			return f.fallback.Pick(prompt, options)
		}
		return "", fmt.Errorf("fzf failed: %w", err)
	}
	if code != fzf.ExitOk {
		return "", ErrCancelled
	}

	selected, ok := <-output
	if !ok || strings.TrimSpace(selected) == "" {
		return "", ErrCancelled
	}
	value := strings.TrimSpace(strings.SplitN(selected, separator, 2)[0])
	for _, option := range options {
		if option.Value == value {
			return option.Value, nil
		}
	}
	return "", fmt.Errorf("fzf returned unknown option %q", value)
}

func displayText(option Option) string {
	if option.Description == "" {
		return option.Value
	}
	return option.Value + separator + option.Description
}

var _ Picker = (*FzfPicker)(nil)
var _ Picker = (*Prompt)(nil)
