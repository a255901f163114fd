package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dolly-parseton/kql-panopticon/pkg/session"
)

var (
	exportOutputFlag string
	exportFormatFlag string
)

var exportPackCmd = &cobra.Command{
	Use:   "export-pack <session>",
	Short: "Export a saved session's queries as a reusable pack (spec §4.9, §4.6)",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportPack,
}

func init() {
	exportPackCmd.Flags().StringVar(&exportOutputFlag, "output", "", "output file path (default: <session>.<format> in CWD)")
	exportPackCmd.Flags().StringVar(&exportFormatFlag, "format", "yaml", "output format: yaml|json")
}

func runExportPack(cmd *cobra.Command, args []string) error {
	name := args[0]

	home, err := panopticonHome()
	if err != nil {
		return failWith(2, err)
	}
	store := session.NewStore(filepath.Join(home, "sessions"))

	sess, err := store.Load(name)
	if err != nil {
		return failWith(2, fmt.Errorf("load session %q: %w", name, err))
	}

	pack, err := sess.ExportAsPack(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return failWith(1, err)
	}

	var body []byte
	switch exportFormatFlag {
	case "json":
		body, err = json.MarshalIndent(pack, "", "  ")
	default:
		body, err = yaml.Marshal(pack)
	}
	if err != nil {
		return failWith(1, fmt.Errorf("marshal pack: %w", err))
	}

	out := exportOutputFlag
	if out == "" {
		ext := "yaml"
		if exportFormatFlag == "json" {
			ext = "json"
		}
		out = name + "." + ext
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return failWith(1, fmt.Errorf("write %s: %w", out, err))
	}

	n := len(pack.Queryset())
	word := "queries"
	if n == 1 {
		word = "query"
	}
	fmt.Printf("exported %d %s to %s\n", n, word, out)
	return nil
}
