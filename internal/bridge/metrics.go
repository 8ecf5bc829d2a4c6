package bridge

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics receives bridge counters and gauges.
type Metrics interface {
	ObservePoll(ok bool)
	ObserveCommand(ok bool)
	ObservePublish()
	SetConnectionState(state string)
	SetCachedTopics(n int)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) ObservePoll(bool)          {}
func (nopMetrics) ObserveCommand(bool)       {}
func (nopMetrics) ObservePublish()           {}
func (nopMetrics) SetConnectionState(string) {}
func (nopMetrics) SetCachedTopics(int)       {}

func orNopLogger(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

func orNopMetrics(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
