package tokenguard

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AlertLevel is the severity attached to a captured message.
type AlertLevel string

const (
	AlertLevelInfo    AlertLevel = "info"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelError   AlertLevel = "error"
)

// AlertSink receives security alerts and unexpected errors. Calls are made
// synchronously on the request path, so implementations should bound their
// own latency. A returned error is logged and otherwise ignored.
type AlertSink interface {
	CaptureMessage(ctx context.Context, message string, fields map[string]string, level AlertLevel) error
	CaptureException(ctx context.Context, err error, fields map[string]string) error
}

// LogAlertSink writes alerts through a zap logger. It is the default sink.
type LogAlertSink struct {
	logger *zap.Logger
}

// NewLogAlertSink returns a sink logging under the "alert" name. A nil logger
// discards everything.
func NewLogAlertSink(logger *zap.Logger) *LogAlertSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlertSink{logger: logger.Named("alert")}
}

// CaptureMessage logs message at the zap level matching level.
func (s *LogAlertSink) CaptureMessage(_ context.Context, message string, fields map[string]string, level AlertLevel) error {
	lvl := zapcore.InfoLevel
	switch level {
	case AlertLevelWarning:
		lvl = zapcore.WarnLevel
	case AlertLevelError:
		lvl = zapcore.ErrorLevel
	}
	if ce := s.logger.Check(lvl, message); ce != nil {
		ce.Write(alertFields(fields)...)
	}
	return nil
}

// CaptureException logs err at error level.
func (s *LogAlertSink) CaptureException(_ context.Context, err error, fields map[string]string) error {
	s.logger.Error("unexpected error", append(alertFields(fields), zap.Error(err))...)
	return nil
}

func alertFields(fields map[string]string) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.String(k, v))
	}
	return out
}
