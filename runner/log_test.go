package runner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLog struct {
	lines []string
}

func (l *recordingLog) Close() {}
func (l *recordingLog) Debugf(format string, a ...interface{}) {
	l.lines = append(l.lines, "D "+fmt.Sprintf(format, a...))
}
func (l *recordingLog) Infof(format string, a ...interface{}) {
	l.lines = append(l.lines, "I "+fmt.Sprintf(format, a...))
}
func (l *recordingLog) Warnf(format string, a ...interface{}) {
	l.lines = append(l.lines, "W "+fmt.Sprintf(format, a...))
}
func (l *recordingLog) Errorf(format string, a ...interface{}) {
	l.lines = append(l.lines, "E "+fmt.Sprintf(format, a...))
}
func (l *recordingLog) Criticalf(format string, a ...interface{}) {
	l.lines = append(l.lines, "C "+fmt.Sprintf(format, a...))
}

func TestQuiet(t *testing.T) {
	rec := &recordingLog{}
	log := Quiet(rec)
	log.Debugf("debug")
	log.Infof("Performing test run")
	log.Warnf("careful")
	log.Errorf("Empty image received: %v", "eof")
	log.Criticalf("boom")
	assert.Equal(t, []string{"E Empty image received: eof", "C boom"}, rec.lines)
}
