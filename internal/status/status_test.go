package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil is OK", nil, OK},
		{"coded error", NotFoundf("no artifact with id %d", 7), NotFound},
		{"wrapped coded error", fmt.Errorf("outer: %w", AlreadyExistsf("dup")), AlreadyExists},
		{"plain error is Internal", errors.New("boom"), Internal},
		{"double wrap keeps inner code", fmt.Errorf("a: %w", fmt.Errorf("b: %w", Abortedf("race"))), Aborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorfWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := Internalf("create artifact: %w", cause)
	if !errors.Is(err, cause) {
		t.Error("Errorf with %w should preserve the cause chain")
	}
	if got := err.Error(); got != "create artifact: disk full" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(NotFoundf("x")) {
		t.Error("IsNotFound should match NotFound errors")
	}
	if IsNotFound(AlreadyExistsf("x")) {
		t.Error("IsNotFound should not match AlreadyExists errors")
	}
	if !IsFailedPrecondition(FailedPreconditionf("ts mismatch")) {
		t.Error("IsFailedPrecondition should match")
	}
	if !IsUnimplemented(Unimplementedf("not yet")) {
		t.Error("IsUnimplemented should match")
	}
	if IsCancelled(nil) {
		t.Error("nil is OK, not Cancelled")
	}
}

func TestConvert(t *testing.T) {
	if Convert(nil) != nil {
		t.Error("Convert(nil) should be nil")
	}
	plain := errors.New("driver: bad connection")
	if got := CodeOf(Convert(plain)); got != Internal {
		t.Errorf("Convert(plain) code = %v, want Internal", got)
	}
	coded := Abortedf("retry")
	if Convert(coded) != coded {
		t.Error("Convert should pass coded errors through unchanged")
	}
}

func TestParseCode(t *testing.T) {
	for c, name := range codeNames {
		if got := ParseCode(name); got != c {
			t.Errorf("ParseCode(%q) = %v, want %v", name, got, c)
		}
	}
	if got := ParseCode("NO_SUCH_CODE"); got != Internal {
		t.Errorf("ParseCode(unknown) = %v, want Internal", got)
	}
}
