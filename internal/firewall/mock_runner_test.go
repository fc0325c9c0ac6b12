package firewall

import (
	"github.com/stretchr/testify/mock"
)

// MockCommandRunner records invocations as "Run"/"Output" calls whose
// arguments are the command name followed by each argv element.
type MockCommandRunner struct {
	mock.Mock
}

func flatten(name string, args []string) []interface{} {
	callArgs := make([]interface{}, 0, len(args)+1)
	callArgs = append(callArgs, name)
	for _, a := range args {
		callArgs = append(callArgs, a)
	}
	return callArgs
}

func (m *MockCommandRunner) Run(name string, args ...string) error {
	return m.Called(flatten(name, args)...).Error(0)
}

func (m *MockCommandRunner) Output(name string, args ...string) ([]byte, error) {
	result := m.Called(flatten(name, args)...)
	if result.Get(0) == nil {
		return nil, result.Error(1)
	}
	return result.Get(0).([]byte), result.Error(1)
}
