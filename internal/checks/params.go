package checks

// Parameter payloads for the seven check types. Each is decoded from the
// raw JSON parameters of a check definition.

// FileExistsParams configures a file_exists check.
type FileExistsParams struct {
	Path string `json:"path"`
}

// FileContentParams configures a file_content check. ShouldMatch defaults
// to true when omitted.
type FileContentParams struct {
	Path        string `json:"path"`
	Pattern     string `json:"pattern"`
	ShouldMatch *bool  `json:"should_match,omitempty"`
}

// RegistryKeyParams configures a registry_key check (Windows only).
// ValueName and Expected are optional; without them only key existence is
// verified.
type RegistryKeyParams struct {
	Path      string `json:"path"`
	ValueName string `json:"value_name,omitempty"`
	Expected  string `json:"expected,omitempty"`
}

// ConfigSettingParams configures a config_setting check against an
// INI-style key=value (or key: value) file.
type ConfigSettingParams struct {
	File     string `json:"file"`
	Key      string `json:"key"`
	Expected string `json:"expected"`
}

// ProcessRunningParams configures a process_running check. Matching policy:
// the check passes when any running process name contains Name,
// case-insensitively.
type ProcessRunningParams struct {
	Name string `json:"name"`
}

// PortOpenParams configures a port_open check against the local host.
type PortOpenParams struct {
	Port uint16 `json:"port"`
}

// CommandOutputParams configures a command_output check. The command is
// operator-trusted input, run through the platform shell; the pattern is
// matched against captured stdout.
type CommandOutputParams struct {
	Command         string `json:"command"`
	ExpectedPattern string `json:"expected_pattern"`
}
