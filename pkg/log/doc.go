/*
Package log provides structured logging for the agent using zerolog.

A single package-level Logger is configured once by Init and shared by every
unit of the agent. Units derive child loggers that carry identifying fields:

	logger := log.WithComponent("dispatcher")
	logger.Info().Str("kind", "run").Msg("command received")

Console output is the default; JSON output is meant for log shippers:

	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true})

The global level filter applies to every child logger, including ones
created before Init was called.
*/
package log
