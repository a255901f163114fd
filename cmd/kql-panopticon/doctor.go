package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify credentials and workspace discovery without dispatching any jobs",
	RunE:  runDoctor,
}

// runDoctor exercises C10 (token acquisition) and C1 (workspace
// discovery) only — a narrow diagnostic path with no job dispatch,
// useful for checking credentials before a long TUI session.
func runDoctor(cmd *cobra.Command, args []string) error {
	log, closeLog, err := openLog(logPath)
	if err != nil {
		return failWith(2, err)
	}
	defer closeLog()

	settings := loadSettings()
	d, err := buildDeps(settings, log)
	if err != nil {
		return failWith(1, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := d.gate.ForceRefresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "auth: FAILED: %v\n", err)
		return failWith(1, err)
	}
	fmt.Println("auth: OK")

	result, err := d.catalog.Discover(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workspace discovery: FAILED: %v\n", err)
		return failWith(1, err)
	}
	fmt.Printf("workspace discovery: OK (%d workspace(s) visible)\n", len(result.Workspaces))
	for _, w := range result.Workspaces {
		fmt.Printf("  %-30s %s\n", w.Name, w.SubscriptionName)
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
	}
	return nil
}
