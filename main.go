// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spectrum/cmd"
	"spectrum/internal/log"
	"spectrum/pkg/build"
)

// main is the entry point for the spectrum command.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Install signal handling
//
// 2. Run Phase:
//   - Parse command line arguments
//   - Execute the selected command; analyze runs the pipeline until the
//     end of the file or a termination signal
//
// 3. Shutdown Phase:
//   - Report the command's error, if any, and set the exit code
func main() {
	// ==================== STARTUP PHASE ====================

	// Development builds have no ldflags; the defaults are good enough.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info: %v", err)
	}

	// Cancelling ctx stops a running analysis and lets it report what it
	// delivered so far.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==================== RUN PHASE ====================

	err := cmd.Execute(ctx)

	// ==================== SHUTDOWN PHASE ====================

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", build.GetBuildFlags().Name, err)
		stop()
		os.Exit(1)
	}
}
