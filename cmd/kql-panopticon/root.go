package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dolly-parseton/kql-panopticon/pkg/model"
)

var (
	cfgFile string
	logPath string
)

var rootCmd = &cobra.Command{
	Use:   "kql-panopticon",
	Short: "Fan out KQL queries across Azure Log Analytics workspaces",
	Long: `kql-panopticon dispatches KQL queries across every Log Analytics
workspace a credential can reach, streams results into an interactive
terminal UI, and persists them as CSV/JSON exports.

Running with no subcommand launches the TUI. run-pack and export-pack
are non-interactive commands that bypass it.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.kql-panopticon/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "kql-panopticon.log", "log file path (spec: ./kql-panopticon.log in CWD)")

	rootCmd.AddCommand(runPackCmd)
	rootCmd.AddCommand(exportPackCmd)
	rootCmd.AddCommand(doctorCmd)
}

// initConfig locates ~/.kql-panopticon/config.yaml, modeled on
// gsoultan/hermod's cmd/hermodctl/root.go cobra.OnInitialize wiring
// (spec §6 "Environment": "honors HOME ... to locate ~/.kql-panopticon/").
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".kql-panopticon"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}
	_ = viper.ReadInConfig()
}

// loadSettings returns spec §3 defaults overlaid with whatever the
// discovered config file set (the Settings tab owns the rest of the
// process's mutations from here).
func loadSettings() model.Settings {
	s := model.DefaultSettings()
	if viper.IsSet("output_folder") {
		s.OutputFolder = viper.GetString("output_folder")
	}
	if viper.IsSet("query_timeout_secs") {
		s.QueryTimeoutSecs = viper.GetInt("query_timeout_secs")
	}
	if viper.IsSet("retry_count") {
		s.RetryCount = viper.GetInt("retry_count")
	}
	if viper.IsSet("validation_interval_secs") {
		s.ValidationIntervalSecs = viper.GetInt("validation_interval_secs")
	}
	if viper.IsSet("export_csv") {
		s.ExportCSV = viper.GetBool("export_csv")
	}
	if viper.IsSet("export_json") {
		s.ExportJSON = viper.GetBool("export_json")
	}
	if viper.IsSet("parse_dynamics") {
		s.ParseDynamics = viper.GetBool("parse_dynamics")
	}
	return s
}

// exitCode is a sentinel error carrying a process exit code, so RunE
// implementations can report validation/bad-invocation failures (spec
// §6: "0 success, 1 any job-level failure or validation error, 2 bad
// invocation") without calling os.Exit directly.
type exitCode struct {
	code int
	err  error
}

func (e *exitCode) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func exitCodeFor(err error) int {
	if ec, ok := err.(*exitCode); ok {
		return ec.code
	}
	return 2
}

func failWith(code int, err error) error {
	return &exitCode{code: code, err: err}
}
