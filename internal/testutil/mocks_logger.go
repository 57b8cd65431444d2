package testutil

// LogCall records one structured logging call: the message and the args as
// passed.
type LogCall struct {
	Message string
	Args    []any
}

// MockLogger records all logging calls for verification. It satisfies
// logger.LoggerInterface without writing anywhere.
type MockLogger struct {
	TraceCalls []LogCall
	DebugCalls []LogCall
	InfoCalls  []LogCall
	WarnCalls  []LogCall
	ErrorCalls []LogCall
}

func NewMockLogger() *MockLogger {
	return &MockLogger{
		TraceCalls: []LogCall{},
		DebugCalls: []LogCall{},
		InfoCalls:  []LogCall{},
		WarnCalls:  []LogCall{},
		ErrorCalls: []LogCall{},
	}
}

func (m *MockLogger) Trace(msg string, args ...any) {
	m.TraceCalls = append(m.TraceCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.DebugCalls = append(m.DebugCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.InfoCalls = append(m.InfoCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.WarnCalls = append(m.WarnCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.ErrorCalls = append(m.ErrorCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Close() {}

func (m *MockLogger) GetLogPath() string {
	return ""
}
