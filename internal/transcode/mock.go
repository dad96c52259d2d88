package transcode

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockTranscoder struct {
	mock.Mock
}

func (m *MockTranscoder) Convert(ctx context.Context, mediaURL string) (Result, error) {
	args := m.Called(ctx, mediaURL)
	return args.Get(0).(Result), args.Error(1)
}

func (m *MockTranscoder) Release(ctx context.Context, streamURL string) error {
	args := m.Called(ctx, streamURL)
	return args.Error(0)
}
