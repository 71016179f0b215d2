package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/podscribe/podscribe/pkg/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "podscribe",
	Short: "Podcast ingestion and transcription pipeline",
	Long: `Podscribe - podcast and YouTube ingestion pipeline

Syncs RSS feeds and YouTube channels, downloads audio, transcribes it,
extracts AI metadata, and indexes transcripts for grounded retrieval.

Run "podscribe pipeline" for the continuous orchestrator, or use the
maintenance commands (import-opml, add, sync, download, status, cleanup)
for one-off work.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(loadConfig)
}

// loadConfig loads the configuration when a command needs it
func loadConfig() {
	// Version and help never touch config; everything else fails fast on a
	// bad environment.
	cmd, _, _ := rootCmd.Find(os.Args[1:])
	if cmd != nil && (cmd.Name() == "version" || cmd.Name() == "help") {
		return
	}

	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}
