package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/printer"
)

// ReportError prints an error returned by Execute. Errors meant for users
// get a titled block with hints; anything else is printed on one line.
func ReportError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if !errors.IsUserFacing(err) {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	title, suggestions := describeError(err)
	_ = printer.Error(w, title, err.Error(), suggestions)
}

func describeError(err error) (string, []string) {
	var (
		lockErr    *errors.LockError
		notFound   *errors.NotFoundError
		validation *errors.ValidationError
	)
	switch {
	case errors.As(err, &lockErr):
		return "Could not lock sweep", []string{
			"Check that the sweep directory is writable",
			"Make sure the filesystem supports flock(2)",
		}
	case errors.Is(err, errors.ErrMissingTrials):
		return "Sweep has no trial list", []string{
			"Recreate the sweep with 'sweeper create axes.yaml'",
		}
	case errors.As(err, &notFound):
		return fmt.Sprintf("The %s was not found", notFound.ResourceType), []string{
			"Run 'sweeper list' to see available sweeps",
		}
	case errors.As(err, &validation):
		return "Invalid input", nil
	default:
		return "Sweep failed", nil
	}
}
