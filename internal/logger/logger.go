package logger

import (
	"go.uber.org/zap"
)

// devは人が読みやすい形式、それ以外はJSON
func New(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
