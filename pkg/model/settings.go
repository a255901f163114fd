package model

// Settings are the process-wide, operator-mutable options described in
// spec §3. They are read by C2/C3/C4 only through the frozen snapshot
// taken at dispatch time (SettingsSnapshot); the live Settings value is
// owned and mutated exclusively by the TUI Settings tab (C8).
type Settings struct {
	OutputFolder           string `yaml:"output_folder" json:"output_folder"`
	QueryTimeoutSecs        int    `yaml:"query_timeout_secs" json:"query_timeout_secs"`
	RetryCount              int    `yaml:"retry_count" json:"retry_count"`
	ValidationIntervalSecs  int    `yaml:"validation_interval_secs" json:"validation_interval_secs"`
	ExportCSV               bool   `yaml:"export_csv" json:"export_csv"`
	ExportJSON              bool   `yaml:"export_json" json:"export_json"`
	ParseDynamics           bool   `yaml:"parse_dynamics" json:"parse_dynamics"`
}

// DefaultSettings returns the defaults named in spec §3.
func DefaultSettings() Settings {
	return Settings{
		OutputFolder:           "./output",
		QueryTimeoutSecs:       30,
		RetryCount:             0,
		ValidationIntervalSecs: 300,
		ExportCSV:              true,
		ExportJSON:             false,
		ParseDynamics:          true,
	}
}

// Merge overlays non-zero fields of o onto a copy of s. Used to apply a
// pack's optional `settings` override (§4.5) on top of the live Settings
// without mutating the live value.
func (s Settings) Merge(o SettingsOverride) Settings {
	out := s
	if o.ExportCSV != nil {
		out.ExportCSV = *o.ExportCSV
	}
	if o.ExportJSON != nil {
		out.ExportJSON = *o.ExportJSON
	}
	if o.ParseDynamics != nil {
		out.ParseDynamics = *o.ParseDynamics
	}
	return out
}

// SettingsOverride models the pack schema's optional `settings` block
// (§6), where every field is optional and therefore a pointer.
type SettingsOverride struct {
	ExportCSV     *bool `yaml:"export_csv,omitempty" json:"export_csv,omitempty"`
	ExportJSON    *bool `yaml:"export_json,omitempty" json:"export_json,omitempty"`
	ParseDynamics *bool `yaml:"parse_dynamics,omitempty" json:"parse_dynamics,omitempty"`
}
