// Command lmdk is the module developer kit tool: it generates signing keys,
// assembles and signs library images from built module binaries, inspects
// and verifies existing images, lists the local build catalog, and
// test-loads modules through the hosted loader.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var verbose bool

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "lmdk",
})

var rootCmd = &cobra.Command{
	Use:           "lmdk",
	Short:         "loadable module development kit",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		keygenCmd(),
		buildCmd(),
		inspectCmd(),
		verifyCmd(),
		listCmd(),
		loadCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}
