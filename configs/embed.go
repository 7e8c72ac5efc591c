// Package configs embeds the commented configuration template written by
// `amanrag config init`.
//
// Precedence when loading (see internal/config Load):
//  1. defaults
//  2. user config ($XDG_CONFIG_HOME/amanrag/config.yaml)
//  3. project config (.amanrag.yaml)
//  4. .env in the working directory
//  5. environment (AMANRAG_*, INDEX_DIR, MODEL_NAME)
package configs

import _ "embed"

// ProjectConfigTemplate is written to .amanrag.yaml. Every key shows its
// default value.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
