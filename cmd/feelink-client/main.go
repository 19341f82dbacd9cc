package main

import (
	"context"
	"fmt"
	"os"

	"feelink-client-go/internal/bootstrap"
)

func main() {
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "feelink-client failed: %v\n", err)
		os.Exit(1)
	}
}
