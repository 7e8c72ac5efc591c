// Package logging configures structured slog output for amanrag.
//
// By default the CLI logs warnings to stderr. With --debug, JSON logs are
// also written to ~/.amanrag/logs/server.log with size-based rotation.
// MCP stdio mode logs to the file only, since stdout and stderr belong to
// the protocol stream and the client.
package logging
