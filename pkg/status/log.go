package status

import (
	"go.uber.org/zap"

	"github.com/elodin/bridge/pkg/autosave"
)

type logView struct {
	log *zap.Logger
}

// Log returns a view that records every transition. Failures are logged at
// warn level with the diagnostics attached.
func Log(logger *zap.Logger) autosave.StatusView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logView{log: logger.Named("status")}
}

func (v logView) Update(state autosave.State, message string, diag *autosave.Diagnostics) {
	fields := []zap.Field{zap.Stringer("state", state), zap.String("message", message)}
	if diag == nil {
		v.log.Info("autosave status", fields...)
		return
	}
	fields = append(fields,
		zap.Time("time", diag.Time),
		zap.String("error", diag.Message),
		zap.String("endpoint", diag.Endpoint),
		zap.Int("http_status", diag.Status),
		zap.Bool("redirected", diag.Redirected),
		zap.String("response_url", diag.ResponseURL),
		zap.String("snippet", diag.Snippet),
	)
	v.log.Warn("autosave status", fields...)
}
