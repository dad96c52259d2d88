package clock

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockReferenceSource struct {
	mock.Mock
}

func (m *MockReferenceSource) Now() (time.Time, error) {
	args := m.Called()
	return args.Get(0).(time.Time), args.Error(1)
}
