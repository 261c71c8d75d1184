// Package logging provides the log sink the core consumes: a minimal
// {info, warn, error} interface, backed by zap in production and a no-op
// recorder in tests.
package logging

import "go.uber.org/zap"

// Sink is the logging capability injected into the dispatcher, handlers, and
// driver. The core never constructs loggers itself.
type Sink interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// zapSink adapts a *zap.Logger to Sink.
type zapSink struct {
	logger *zap.Logger
}

// NewProduction builds a Sink backed by zap's production configuration.
func NewProduction() (Sink, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapSink{logger: logger}, nil
}

// NewDevelopment builds a Sink backed by zap's development configuration
// (human-readable, colorized console output).
func NewDevelopment() (Sink, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &zapSink{logger: logger}, nil
}

func (s *zapSink) Info(msg string, fields ...zap.Field)  { s.logger.Info(msg, fields...) }
func (s *zapSink) Warn(msg string, fields ...zap.Field)  { s.logger.Warn(msg, fields...) }
func (s *zapSink) Error(msg string, fields ...zap.Field) { s.logger.Error(msg, fields...) }

// NopSink discards everything. Used by tests that don't assert on log output.
type NopSink struct{}

func (NopSink) Info(string, ...zap.Field)  {}
func (NopSink) Warn(string, ...zap.Field)  {}
func (NopSink) Error(string, ...zap.Field) {}
