package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notesim/internal/domain"
	"notesim/internal/port"
)

// ErrCancelled is returned when the user declines a confirmation.
var ErrCancelled = errors.New("cancelled by user")

// Commands are the user-facing operations. Each one reports its terminal
// status through Notifier.
type Commands struct {
	Sync     *SyncEngine
	Query    *QueryEngine
	Notes    port.NoteStore
	Prompter port.Prompter
	Notifier port.Notifier
}

// FindSimilarToCurrent lists the notes most similar to the note with key currentKey.
func (c *Commands) FindSimilarToCurrent(ctx context.Context, currentKey string, limit int) ([]domain.SimilarityResult, error) {
	if strings.TrimSpace(currentKey) == "" {
		err := domain.ValidationError("find similar", "no active note")
		c.notify(err.Message)
		return nil, err
	}

	note, err := c.Notes.ReadNote(ctx, currentKey)
	if err != nil {
		c.notifyError(err)
		return nil, err
	}

	results, err := c.Query.SimilarTo(ctx, note, limit)
	if err != nil {
		c.notifyError(err)
		return nil, err
	}

	if len(results) == 0 {
		c.notify("No similar notes found.")
		return results, nil
	}
	c.notify(FormatResults("Notes similar to "+currentKey, results))
	return results, nil
}

// QueryByText lists the notes most similar to text, prompting for it when empty.
func (c *Commands) QueryByText(ctx context.Context, text string, limit int) ([]domain.SimilarityResult, error) {
	if strings.TrimSpace(text) == "" && c.Prompter != nil {
		entered, err := c.Prompter.PromptText(ctx, "Search notes")
		if err != nil {
			return nil, err
		}
		text = entered
	}

	results, err := c.Query.QueryText(ctx, text, limit)
	if err != nil {
		c.notifyError(err)
		return nil, err
	}

	if len(results) == 0 {
		c.notify("No similar notes found.")
		return results, nil
	}
	c.notify(FormatResults("Results for "+strings.TrimSpace(text), results))
	return results, nil
}

// RefreshStale re-embeds notes modified since their last sync.
func (c *Commands) RefreshStale(ctx context.Context) (domain.SyncReport, error) {
	report, err := c.Sync.Refresh(ctx)
	if err != nil {
		c.notifyError(err)
		return report, err
	}
	c.notify(fmt.Sprintf("Refreshed %d notes (%d up to date, %d failed).",
		report.Processed, report.Skipped, report.Failed))
	return report, nil
}

// RecomputeAll re-embeds every note after the user confirms.
func (c *Commands) RecomputeAll(ctx context.Context) (domain.SyncReport, error) {
	ok, err := c.Prompter.Confirm(ctx, "Recompute embeddings for every note? This re-embeds the whole vault.")
	if err != nil {
		return domain.SyncReport{}, err
	}
	if !ok {
		c.notify("Recompute cancelled.")
		return domain.SyncReport{}, ErrCancelled
	}

	report, err := c.Sync.RecomputeAll(ctx)
	if err != nil {
		c.notifyError(err)
		return report, err
	}
	c.notify(fmt.Sprintf("Recomputed %d notes (%d failed).", report.Processed, report.Failed))
	return report, nil
}

// FormatResults renders results as a numbered list with percentages.
func FormatResults(title string, results []domain.SimilarityResult) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString(":")
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, r.Path, r.Percent())
	}
	return b.String()
}

func (c *Commands) notify(msg string) {
	if c.Notifier != nil {
		c.Notifier.Notify(msg)
	}
}

func (c *Commands) notifyError(err error) {
	var e *domain.Error
	if errors.As(err, &e) && e.Kind == domain.KindValidation {
		c.notify(e.Message)
		return
	}
	c.notify("Error: " + err.Error())
}
