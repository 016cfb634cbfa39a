package testutils

import (
	"github.com/stretchr/testify/mock"
)

type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) Navigate(path string) {
	m.Called(path)
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Disconnect() {
	m.Called()
}
