// Command kql-panopticon fans out KQL queries across Azure Log Analytics
// workspaces. With no subcommand it launches the interactive TUI (C8);
// run-pack and export-pack bypass it for scripting (spec §4.9).
package main

func main() {
	Execute()
}
