package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dolly-parseton/kql-panopticon/pkg/export"
	"github.com/dolly-parseton/kql-panopticon/pkg/tui"
)

func init() {
	rootCmd.RunE = runTUI
}

// runTUI launches the interactive Model/Message/Update/View loop (spec
// §4.8) with no subcommand given.
func runTUI(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.gate.Run(ctx)

	m := tui.New(settings, d.executor, d.catalog, d.gate, d.packs, d.sessions, export.New(), log)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return failWith(1, err)
	}
	return nil
}
