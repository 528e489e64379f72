package definition

import (
	"github.com/sirupsen/logrus"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// logrusLogger adapts a *logrus.Entry to types.Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger builds the default types.Logger used when a caller does not
// supply its own. Output goes to stderr with the standard text formatter.
func NewLogger() types.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewLoggerAt builds a types.Logger at the given level, used by
// cmd/byzgen to implement its --debug toggle and by tests to keep
// output quiet.
func NewLoggerAt(level logrus.Level) types.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(level)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Info(v ...interface{})                  { l.entry.Info(v...) }
func (l *logrusLogger) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warn(v ...interface{})                  { l.entry.Warn(v...) }
func (l *logrusLogger) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Error(v ...interface{})                 { l.entry.Error(v...) }
func (l *logrusLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
func (l *logrusLogger) Debug(v ...interface{})                 { l.entry.Debug(v...) }
func (l *logrusLogger) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }

func (l *logrusLogger) WithField(key string, value interface{}) types.Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}
