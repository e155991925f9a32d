package logging

import (
	"context"
	"log/slog"
	"sort"

	"github.com/samber/oops"
)

// LogError logs err at error level. See LogErrorContext.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext logs err at error level with the trace and request IDs in
// ctx. An oops error also contributes its code and its context map, the
// latter as a "context" group.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.LogAttrs(ctx, slog.LevelError, msg, errorAttrs(err)...)
}

func errorAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	attrs := []slog.Attr{slog.String("error", err.Error())}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return attrs
	}
	if code, _ := oopsErr.Code().(string); code != "" {
		attrs = append(attrs, slog.String("code", code))
	}

	fields := oopsErr.Context()
	if len(fields) == 0 {
		return attrs
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	group := make([]any, 0, len(keys))
	for _, k := range keys {
		group = append(group, slog.Any(k, fields[k]))
	}
	return append(attrs, slog.Group("context", group...))
}
