package logging

import (
	"go.uber.org/zap"
)

// New returns a console logger for development and a JSON production logger otherwise.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Bootstrap returns a production logger for use before configuration is loaded.
func Bootstrap() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
