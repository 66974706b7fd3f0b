package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"
)

func TestWrapMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("start: %w", Wrap(CodeBind, "bind :9000", io.ErrUnexpectedEOF))

	if !stderrors.Is(err, ErrBind) {
		t.Fatalf("expected %v to match ErrBind", err)
	}
	if stderrors.Is(err, ErrListen) {
		t.Fatalf("expected %v not to match ErrListen", err)
	}
	if !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause to stay reachable")
	}
}

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "message only", err: New(CodeAccept, "accept"), want: "accept"},
		{name: "message and cause", err: Wrap(CodeLogWrite, "write log.txt", io.ErrShortWrite), want: "write log.txt: short write"},
		{name: "cause only", err: Wrap(CodeArchive, "", io.EOF), want: "EOF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q, want empty", got)
	}
	if got := CodeOf(io.EOF); got != CodeUnknown {
		t.Fatalf("CodeOf(io.EOF) = %q, want %q", got, CodeUnknown)
	}
	wrapped := fmt.Errorf("serve: %w", New(CodeListen, "listen"))
	if got := CodeOf(wrapped); got != CodeListen {
		t.Fatalf("CodeOf = %q, want %q", got, CodeListen)
	}
}

func TestFatalCodes(t *testing.T) {
	for _, code := range []Code{CodeBind, CodeListen, CodeLogOpen} {
		if !code.Fatal() {
			t.Fatalf("%s should be fatal", code)
		}
	}
	for _, code := range []Code{CodeAccept, CodeConnectionRead, CodeConnectionClosed, CodeLogWrite, CodeArchive} {
		if code.Fatal() {
			t.Fatalf("%s should not be fatal", code)
		}
	}
}
