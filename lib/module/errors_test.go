package module

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := NewError(CodeNotFound, "timer 7 not found")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected error to match ErrNotFound")
	}
	if errors.Is(err, ErrAborted) {
		t.Errorf("Expected error not to match ErrAborted")
	}

	wrapped := fmt.Errorf("stop: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Errorf("Expected wrapped error to match ErrNotFound")
	}
}

func TestErrorFromReply(t *testing.T) {
	tests := []struct {
		msg  string
		code ErrCode
	}{
		{"ERR unknown command 'foo'", CodeUser},
		{"WRONGTYPE Operation against a key holding the wrong kind of value", CodeWrongType},
		{"ABORTED blocking call was aborted", CodeAborted},
		{"ERR wrong number of arguments for 'get' command", CodeWrongArity},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := errorFromReply(tt.msg)
			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Msg != tt.msg {
				t.Errorf("Expected message %q, got %q", tt.msg, err.Msg)
			}
		})
	}
}

func TestReplyText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error", errors.New("boom"), "ERR boom"},
		{"user error", Errorf("bad input %d", 3), "ERR bad input 3"},
		{"wrong type", NewError(CodeWrongType, "not a list"), "WRONGTYPE not a list"},
		{"aborted", NewError(CodeAborted, "gone"), "ABORTED gone"},
		{"keeps code word", errorFromReply("ERR this is an error"), "ERR this is an error"},
		{"custom code word", NewError(CodeUser, "NOPERM no access"), "NOPERM no access"},
		{"single word", NewError(CodeUser, "FAIL"), "ERR FAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replyText(tt.err); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
