// Apreview serves the assessment plan peer review form.
//
// Usage:
//
//	# Start the HTTP service
//	APREVIEW_WEBHOOK_URL=https://hooks.example.com/reviews apreview serve
//
//	# Print the spreadsheet header every submission row follows
//	apreview schema
//
//	# Check a questionnaire definition and the configuration
//	apreview validate --form ./form.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apreview",
		Short: "Assessment plan peer review form service",
		Long: `apreview hosts the assessment plan peer review form. Reviewers answer
the questionnaire over HTTP; each submission is appended to a CSV file and
posted once to a webhook.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate(versionString() + "\n")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("apreview %s (commit %s, built %s)", version, gitCommit, buildDate)
}
