package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "plfscan",
		Short: "TIA Portal .plf container address extractor",
		Long: `plfscan walks a Siemens TIA Portal project container file (.plf) and
extracts every reachable PLC block reference address, writing them to
export.txt as dotted symbolic names paired with hexadecimal addresses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newExtractCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
