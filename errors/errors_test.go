package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsTrace(t *testing.T) {
	tcs := []struct {
		name     string
		err      *PinErr
		expected string
	}{
		{
			name:     "ErrWithoutCause",
			err:      NewNotImplemented(),
			expected: "Not implemented",
		},
		{
			name: "ErrWithCauses",
			err: &PinErr{
				msg: "foo",
				cause: &PinErr{
					msg:   "bar",
					cause: &PinErr{msg: "qux"},
				},
			},
			expected: "foo\n\tCaused by: bar\n\t\tCaused by: qux",
		},
		{
			name:     "ErrWithPlainCause",
			err:      NewPersistence("error saving pin").WithCause(fmt.Errorf("duplicate key")),
			expected: "error saving pin\n\tCaused by: duplicate key",
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			actual := c.err.Trace()
			assert.Equal(t, c.expected, actual, "unexpected error trace")
		})
	}
}

func TestErrorsStatusCode(t *testing.T) {
	tcs := []struct {
		err          *PinErr
		expectedCode int
	}{
		{
			err:          NewServiceFailure("fake"),
			expectedCode: http.StatusInternalServerError,
		},
		{
			err:          NewPersistence("fake"),
			expectedCode: http.StatusInternalServerError,
		},
		{
			err:          NewOversized("fake"),
			expectedCode: http.StatusRequestEntityTooLarge,
		},
		{
			err:          NewNotFound("fake"),
			expectedCode: http.StatusNotFound,
		},
		{
			err:          NewBadInput("fake"),
			expectedCode: http.StatusBadRequest,
		},
		{
			err:          NewEmptyContent("fake"),
			expectedCode: http.StatusBadRequest,
		},
		{
			err:          NewMalformedURL("fake"),
			expectedCode: http.StatusBadRequest,
		},
		{
			err:          NewOffPalette("fake"),
			expectedCode: http.StatusBadRequest,
		},
		{
			err:          NewForbidden("fake"),
			expectedCode: http.StatusForbidden,
		},
		{
			err:          NewUnauthorized("fake"),
			expectedCode: http.StatusUnauthorized,
		},
	}
	for _, c := range tcs {
		code := c.err.StatusCode()
		assert.Equal(t, c.expectedCode, code, "unexpected status code for %s", c.err.Code)
	}
}

func TestErrorsIsValidation(t *testing.T) {
	for _, err := range []*PinErr{NewEmptyContent("fake"), NewMalformedURL("fake"), NewOffPalette("fake")} {
		assert.True(t, err.IsValidation(), "%s", err.Code)
	}
	for _, err := range []*PinErr{NewPersistence("fake"), NewForbidden("fake"), NewOversized("fake")} {
		assert.False(t, err.IsValidation(), "%s", err.Code)
	}
}

func TestErrorsCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewForbidden("edit window closed"))
	assert.Equal(t, ErrCodeForbidden, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrCodeForbidden))
	assert.Equal(t, ErrCode(""), CodeOf(fmt.Errorf("plain")))
	assert.False(t, Is(nil, ErrCodeNotFound))
}
