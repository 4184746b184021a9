package workspace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
)

const signInInstructions = "A browser may have opened for Google sign-in. Complete the sign-in; " +
	"when you see the redirect (or 'This site can't be reached' after success), " +
	"come back here to retry."

var ErrSignInCancelled = errors.New("sign-in cancelled")

// LinePrompter waits for Enter on a plain reader.
type LinePrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p LinePrompter) WaitForSignIn(_ context.Context) error {
	if p.Out != nil {
		fmt.Fprintf(p.Out, "\n>>> %s Press Enter to retry... ", signInInstructions)
	}
	_, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// FormPrompter asks for confirmation with a terminal form.
type FormPrompter struct{}

func (FormPrompter) WaitForSignIn(ctx context.Context) error {
	retry := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Google sign-in").
			Description(signInInstructions).
			Affirmative("Retry").
			Negative("Cancel").
			Value(&retry),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrSignInCancelled
		}
		return err
	}
	if !retry {
		return ErrSignInCancelled
	}
	return nil
}
