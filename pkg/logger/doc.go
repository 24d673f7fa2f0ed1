// Package logger builds *slog.Logger values for jobkit components.
//
// New applies functional options (format, level, static attributes, context
// extractors) and wraps the chosen slog handler in LogHandlerDecorator, which
// adds attributes pulled from the context on every call. Attributes attached
// with ContextWithAttrs are always emitted, so a job handler that logs with
// slog.InfoContext(ctx, ...) inherits the job_id and queue set by the server.
//
//	log := logger.New(logger.FromConfig(cfg)...)
//	ctx = logger.ContextWithAttrs(ctx, logger.Queue("emails"), logger.JobID(id))
//	log.InfoContext(ctx, "job finished", logger.Duration(time.Since(start)))
//
// The attribute helpers in attr.go keep key names consistent across packages.
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
