// Command lexarch is the admin CLI: index maintenance, corpus
// inspection, and one-shot questions without running the server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "lexarch",
		Short:         "Administer the legal document index and ask questions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(indexCmd())
	root.AddCommand(corpusCmd())
	root.AddCommand(askCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
