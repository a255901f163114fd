package tui

import (
	"fmt"
	"strconv"

	"github.com/dolly-parseton/kql-panopticon/pkg/model"
)

// settingsField is one editable row of the Settings tab (spec §3: "Process-
// wide, mutable from Settings tab"). Boolean fields toggle in place;
// string/int fields open a prompt popup pre-filled with the current value.
type settingsField struct {
	label string
	isBool bool
	get    func(model.Settings) string
	set    func(*model.Settings, string) error
}

func settingsFields() []settingsField {
	return []settingsField{
		{
			label: "output_folder",
			get:   func(s model.Settings) string { return s.OutputFolder },
			set: func(s *model.Settings, v string) error {
				if v == "" {
					return fmt.Errorf("output_folder: must not be empty")
				}
				s.OutputFolder = v
				return nil
			},
		},
		{
			label: "query_timeout_secs",
			get:   func(s model.Settings) string { return strconv.Itoa(s.QueryTimeoutSecs) },
			set: func(s *model.Settings, v string) error {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					return fmt.Errorf("query_timeout_secs: must be a positive integer")
				}
				s.QueryTimeoutSecs = n
				return nil
			},
		},
		{
			label: "retry_count",
			get:   func(s model.Settings) string { return strconv.Itoa(s.RetryCount) },
			set: func(s *model.Settings, v string) error {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					return fmt.Errorf("retry_count: must be a non-negative integer")
				}
				s.RetryCount = n
				return nil
			},
		},
		{
			label: "validation_interval_secs",
			get:   func(s model.Settings) string { return strconv.Itoa(s.ValidationIntervalSecs) },
			set: func(s *model.Settings, v string) error {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					return fmt.Errorf("validation_interval_secs: must be a positive integer")
				}
				s.ValidationIntervalSecs = n
				return nil
			},
		},
		{
			label:  "export_csv",
			isBool: true,
			get:    func(s model.Settings) string { return strconv.FormatBool(s.ExportCSV) },
			set: func(s *model.Settings, v string) error {
				s.ExportCSV = v == "true"
				return nil
			},
		},
		{
			label:  "export_json",
			isBool: true,
			get:    func(s model.Settings) string { return strconv.FormatBool(s.ExportJSON) },
			set: func(s *model.Settings, v string) error {
				s.ExportJSON = v == "true"
				return nil
			},
		},
		{
			label:  "parse_dynamics",
			isBool: true,
			get:    func(s model.Settings) string { return strconv.FormatBool(s.ParseDynamics) },
			set: func(s *model.Settings, v string) error {
				s.ParseDynamics = v == "true"
				return nil
			},
		},
	}
}
