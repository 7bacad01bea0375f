package config

import (
	"context"
	"os"
	"strings"

	"bitbucket.org/lahodne/vyroba_backend/appctx"
	"github.com/sirupsen/logrus"
)

func NewLogger() *logrus.Logger {
	logg := logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.ErrorLevel
	}
	logg.SetLevel(level)

	return logg
}

// LogErrorCtx logs a structured error and attaches the request
// correlation id when the context carries one, so a failed posting can
// be tied back to the request that triggered it.
func LogErrorCtx(ctx context.Context, logger *logrus.Logger, moduleName string, funcName string, contextName string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  contextName,
	}
	if data != nil {
		fields["data"] = data
	}
	if cid, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok {
		fields["correlationId"] = cid
	}
	logger.WithFields(fields).Error(err.Error())
}
