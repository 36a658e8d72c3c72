package port

import "context"

// Prompter is the narrow UI capability the commands need for confirmation
// and free-text input.
type Prompter interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
	PromptText(ctx context.Context, label string) (string, error)
}

// Notifier delivers terminal status messages to the user.
type Notifier interface {
	Notify(msg string)
}
