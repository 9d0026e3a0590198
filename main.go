package main

import (
	"context"
	"errors"
	"os"

	"github.com/dendrascience/verfs/internal/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		if errors.Is(err, cmd.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
