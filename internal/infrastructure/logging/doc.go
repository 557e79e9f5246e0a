// Package logging provides the structured logger used across Agora Core.
//
// It is a thin wrapper over log/slog that applies the configured level,
// format, and output, and stamps every record with the service name and
// build version.
package logging
