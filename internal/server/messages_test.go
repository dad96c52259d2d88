package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoErrOk(t *testing.T) {
	expected := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data: map[string]any{
				"testkey": "testvalue",
			},
		},
	}

	result := NoErrOK(1, map[string]any{
		"testkey": "testvalue",
	})

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, expected.Id, result.Id, "expected Id to match")
	assert.WithinDuration(t, expected.Timestamp, result.Timestamp, time.Duration(time.Second), "expected Timestamp to be within 1 second")
	assert.Equal(t, expected.Response.ResponseCode, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, expected.Response.Data, result.Response.Data, "expected Data to match")
}

func TestNoErrAccepted(t *testing.T) {
	result := NoErrAccepted(7)

	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 7, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusAccepted, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Empty(t, result.Response.Error, "expected no error on an accepted command")
	assert.WithinDuration(t, Now(), result.Timestamp, time.Duration(time.Second), "expected Timestamp to be within 1 second")
}

func TestErrRoomNotFound(t *testing.T) {
	result := ErrRoomNotFound(2)

	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 2, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusNotFound, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "room not found", result.Response.Error, "expected Error to match")
}

func TestErrPreconditionFailed(t *testing.T) {
	result := ErrPreconditionFailed(3, "playback is not running")

	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 3, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusPreconditionFailed, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "playback is not running", result.Response.Error, "expected the reason passed through")
}

func TestErrUpstreamFailure(t *testing.T) {
	result := ErrUpstreamFailure(4, "media conversion failed")

	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 4, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusBadGateway, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "media conversion failed", result.Response.Error, "expected the reason passed through")
}

func TestErrInvalidMessage(t *testing.T) {
	t.Run("with a message id", func(t *testing.T) {
		result := ErrInvalidMessage(5)

		assert.Equal(t, 5, result.Id, "expected Id to match")
		assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode, "expected ResponseCode to match")
	})

	t.Run("without a message id", func(t *testing.T) {
		result := ErrInvalidMessage(-1)

		assert.Zero(t, result.Id, "expected no Id when the message had none")
		assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode, "expected ResponseCode to match")
	})
}
