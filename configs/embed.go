// Package configs embeds the configuration template written by
// 'docindex config init'.
//
// The template mirrors the defaults in internal/config NewConfig(). Keep
// the two in step when adding options.
package configs

import _ "embed"

// UserConfigTemplate is written to ~/.config/docindex/config.yaml by
// 'docindex config init'.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
