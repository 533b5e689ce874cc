package ctxlogger

// Logger hlsfeed logger interface
type Logger interface {
	Debugf(format string, args ...interface{})
	Printf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}
