// Package utils holds small, dependency-free helpers shared by the
// catalog and the export writer, adapted from the
// teacher's pkg/utils/azure.go.
package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ParseResourceID splits an Azure resource ID for a Log Analytics
// workspace into subscription, resource group and workspace name.
func ParseResourceID(id string) (sub, rg, workspace string, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", "", errors.New("empty resource id")
	}
	parts := strings.Split(id, "/")
	// Expect: /subscriptions/<sub>/resourceGroups/<rg>/providers/Microsoft.OperationalInsights/workspaces/<name>
	if len(parts) < 9 {
		return "", "", "", fmt.Errorf("invalid resource id: %s", id)
	}
	for i := 0; i < len(parts)-1; i++ {
		switch strings.ToLower(parts[i]) {
		case "subscriptions":
			if i+1 < len(parts) {
				sub = parts[i+1]
			}
		case "resourcegroups":
			if i+1 < len(parts) {
				rg = parts[i+1]
			}
		case "workspaces":
			if i+1 < len(parts) {
				workspace = parts[i+1]
			}
		}
	}
	if sub == "" || rg == "" || workspace == "" {
		return "", "", "", fmt.Errorf("failed to parse resource id: %s", id)
	}
	return
}

var nonNormalChars = regexp.MustCompile(`[^a-z0-9_-]`)
var repeatUnderscore = regexp.MustCompile(`_+`)

// Normalize implements the export-path normalization rule of spec §4.4:
// lowercase; replace any character outside [a-z0-9_-] with an
// underscore; collapse consecutive underscores; trim leading/trailing
// underscores.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = nonNormalChars.ReplaceAllString(n, "_")
	n = repeatUnderscore.ReplaceAllString(n, "_")
	n = strings.Trim(n, "_")
	if n == "" {
		n = "unnamed"
	}
	return n
}
