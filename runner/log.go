package runner

import "github.com/cyclopcam/logs"

// quietLog drops everything below error level.
type quietLog struct {
	logs.Log
}

func (quietLog) Debugf(format string, a ...interface{}) {}
func (quietLog) Infof(format string, a ...interface{})  {}
func (quietLog) Warnf(format string, a ...interface{})  {}

// Quiet wraps log so that only Errorf and Criticalf are written.
func Quiet(log logs.Log) logs.Log {
	return quietLog{Log: log}
}
