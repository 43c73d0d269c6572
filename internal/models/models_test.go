package models

import (
	"errors"
	"strings"
	"testing"
)

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		request ChatRequest
		wantErr error
	}{
		{
			name:    "valid message",
			request: ChatRequest{Message: "do you have any discounts?", SessionID: "s1"},
			wantErr: nil,
		},
		{
			name:    "empty message",
			request: ChatRequest{Message: "", SessionID: "s1"},
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "whitespace only message",
			request: ChatRequest{Message: "   \t\n ", SessionID: "s1"},
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "message too long",
			request: ChatRequest{Message: strings.Repeat("a", MaxChatMessageLength+1)},
			wantErr: ErrMessageTooLong,
		},
		{
			name:    "missing session id is allowed",
			request: ChatRequest{Message: "hello"},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	success := Success(map[string]string{"key": "value"})
	if success.Status != string(APIStatusOK) {
		t.Errorf("Success status = %q, want %q", success.Status, APIStatusOK)
	}
	if success.Result == nil {
		t.Error("Success result should not be nil")
	}

	errResp := Error("something went wrong")
	if errResp.Status != string(APIStatusError) {
		t.Errorf("Error status = %q, want %q", errResp.Status, APIStatusError)
	}
	if errResp.Message != "something went wrong" {
		t.Errorf("Error message = %q, want %q", errResp.Message, "something went wrong")
	}

	withMsg := SuccessWithMessage("created", "result-data")
	if withMsg.Status != string(APIStatusOK) || withMsg.Message != "created" || withMsg.Result != "result-data" {
		t.Errorf("SuccessWithMessage = %+v, unexpected fields", withMsg)
	}
}

func TestSessionStateValues(t *testing.T) {
	if SessionStateIdle != "IDLE" {
		t.Errorf("SessionStateIdle = %q, want IDLE", SessionStateIdle)
	}
	if SessionStateAwaitingConsent != "AWAITING_CONSENT" {
		t.Errorf("SessionStateAwaitingConsent = %q, want AWAITING_CONSENT", SessionStateAwaitingConsent)
	}
}
