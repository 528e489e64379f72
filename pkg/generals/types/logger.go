package types

// Logger is the logging surface every component in this module depends
// on. The production implementation (pkg/generals/definition) backs it
// with logrus; tests may swap in a quieter one.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	// WithField returns a derived Logger carrying an extra structured
	// field, e.g. the peer id or role, on every subsequent line.
	WithField(key string, value interface{}) Logger
}
