package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Local deployments keep LLM_* settings in a .env next to the binary.
	_ = godotenv.Load()

	root := &cobra.Command{Use: "answerd", Short: "Streaming answer gateway"}
	root.AddCommand(serveCmd(), demoCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
