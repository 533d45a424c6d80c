package spanz

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// leveledLogger adapts zap to the retryablehttp logging interface.
type leveledLogger struct {
	logger *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func newLeveledLogger(logger *zap.Logger) leveledLogger {
	return leveledLogger{logger: logger.Sugar()}
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}

// spanFields describes a span in log entries.
func spanFields(span *Span) []zap.Field {
	sc := span.context
	return []zap.Field{
		zap.Uint64("trace_id", sc.traceID.Lower()),
		zap.Uint64("span_id", sc.spanID.Lower()),
		zap.String("operation", span.OperationName()),
	}
}
