package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cardscan/internal/services"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	switch {
	case err == nil:
		return
	case errors.Is(err, context.Canceled):
		os.Exit(130)
	case errors.Is(err, services.ErrValidation):
		fmt.Fprintln(os.Stderr, "cardscan:", err)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "cardscan:", err)
		os.Exit(1)
	}
}
