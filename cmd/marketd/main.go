// Command marketd runs the edition inventory and allocation engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mintline/edition_layer/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "marketd:", err)
		os.Exit(1)
	}
}
