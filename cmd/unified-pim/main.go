package main

import (
	"context"
	"fmt"
	"os"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/bootstrap"
)

func main() {
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unified-pim failed: %v\n", err)
		os.Exit(1)
	}
}
