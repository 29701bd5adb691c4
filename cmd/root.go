// SPDX-License-Identifier: MIT

// Package cmd implements the spectrum command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"spectrum/pkg/build"
)

// NewRootCommand builds the command tree. Each call returns a fresh tree,
// so tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		newAnalyzeCommand(),
		newToneCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the command line with os.Args. Cancelling ctx stops a
// running analysis.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
