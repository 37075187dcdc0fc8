// Package zaplog adapts a zap logger to the auth logging interface.
package zaplog

import (
	auth "github.com/goliatone/go-authkit"
	"go.uber.org/zap"
)

// Adapter wraps a zap.SugaredLogger.
type Adapter struct {
	log *zap.SugaredLogger
}

// New creates an adapter around logger.
func New(logger *zap.Logger) *Adapter {
	return &Adapter{log: logger.Sugar()}
}

// Debug implements auth.Logger.
func (a *Adapter) Debug(format string, args ...any) { a.log.Debugf(format, args...) }

// Info implements auth.Logger.
func (a *Adapter) Info(format string, args ...any) { a.log.Infof(format, args...) }

// Warn implements auth.Logger.
func (a *Adapter) Warn(format string, args ...any) { a.log.Warnf(format, args...) }

// Error implements auth.Logger.
func (a *Adapter) Error(format string, args ...any) { a.log.Errorf(format, args...) }

var _ auth.Logger = (*Adapter)(nil)
