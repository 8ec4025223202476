package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackVisitRequest_Validate(t *testing.T) {
	valid := TrackVisitRequest{Identifier: "u1", UserAgent: "Mozilla/5.0", ScreenWidth: 1920}
	assert.NoError(t, valid.Validate())

	missing := TrackVisitRequest{UserAgent: "Mozilla/5.0"}
	assert.Error(t, missing.Validate())
}

func TestSubmitContactRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitContactRequest
		wantErr bool
	}{
		{
			name: "valid",
			req:  SubmitContactRequest{Name: "Ada", Email: "ada@example.com", Message: "Hi", Intent: "job"},
		},
		{
			name:    "missing name",
			req:     SubmitContactRequest{Email: "ada@example.com", Message: "Hi", Intent: "job"},
			wantErr: true,
		},
		{
			name:    "bad email",
			req:     SubmitContactRequest{Name: "Ada", Email: "not-an-email", Message: "Hi", Intent: "job"},
			wantErr: true,
		},
		{
			name:    "missing message",
			req:     SubmitContactRequest{Name: "Ada", Email: "ada@example.com", Intent: "job"},
			wantErr: true,
		},
		{
			name:    "unknown intent",
			req:     SubmitContactRequest{Name: "Ada", Email: "ada@example.com", Message: "Hi", Intent: "spam"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	req := SubmitContactRequest{Intent: "spam"}
	err := req.Validate()
	require.Error(t, err)

	resp := CreateValidationErrorResponse(err)

	assert.Equal(t, 400, resp.Code)
	assert.NotEmpty(t, resp.Errors)
	for _, ve := range resp.Errors {
		assert.NotEmpty(t, ve.Field)
		assert.NotEmpty(t, ve.Message)
	}
}
