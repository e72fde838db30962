package spanz

import (
	"go.uber.org/zap"
)

// LogExporter returns a handler that writes every finished span to logger.
// Spans tagged with an error are logged at error level.
func LogExporter(logger *zap.Logger) SpanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(span Span) {
		fields := []zap.Field{
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID),
			zap.String("operation", span.Name),
			zap.Duration("duration", span.Duration),
		}
		if span.ParentID != "" {
			fields = append(fields, zap.String("parent_id", span.ParentID))
		}
		if len(span.Tags) > 0 {
			fields = append(fields, zap.Any("tags", span.Tags))
		}
		if len(span.Baggage) > 0 {
			fields = append(fields, zap.Any("baggage", span.Baggage))
		}
		if len(span.Events) > 0 {
			labels := make([]string, len(span.Events))
			for i, e := range span.Events {
				labels[i] = e.Label
			}
			fields = append(fields, zap.Strings("events", labels))
		}

		if msg, failed := span.Tags[TagError]; failed {
			logger.Error("span completed with error", append(fields, zap.String("error", msg))...)
			return
		}
		logger.Info("span completed", fields...)
	}
}
