package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeParseEPUB, "bad archive: %s", "book.epub")

	if err.Code != ErrCodeParseEPUB {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeParseEPUB)
	}
	if err.Message != "bad archive: book.epub" {
		t.Errorf("Message = %v", err.Message)
	}

	expected := "PARSE_EPUB: bad archive: book.epub"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeAssetImage, cause, "decode cover.jpg")

	if err.Code != ErrCodeAssetImage {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAssetImage)
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through the wrapper")
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeLayoutOverflow, "zero content area")

	if !Is(err, ErrCodeLayoutOverflow) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrCodeEncode) {
		t.Error("Is should not match a different code")
	}
	if Is(errors.New("plain"), ErrCodeEncode) {
		t.Error("Is should not match plain errors")
	}

	// Wrapped in a plain fmt error, the code is still discoverable.
	wrapped := fmt.Errorf("stage: %w", err)
	if !Is(wrapped, ErrCodeLayoutOverflow) {
		t.Error("Is should unwrap fmt-wrapped errors")
	}
}

func TestOverflowCarriesBlock(t *testing.T) {
	err := Overflow("ch2/block3", "image taller than content area")
	if err.BlockID != "ch2/block3" {
		t.Errorf("BlockID = %q", err.BlockID)
	}
	if err.Code != ErrCodeLayoutOverflow {
		t.Errorf("Code = %v", err.Code)
	}
}

func TestRecoverable(t *testing.T) {
	cases := []struct {
		code Code
		want bool
	}{
		{ErrCodeAssetFont, true},
		{ErrCodeAssetImage, true},
		{ErrCodeAssetDict, true},
		{ErrCodeParseEPUB, false},
		{ErrCodeLayoutOverflow, false},
		{ErrCodeEncode, false},
	}
	for _, tc := range cases {
		if got := Recoverable(New(tc.code, "x")); got != tc.want {
			t.Errorf("Recoverable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
	if Recoverable(errors.New("plain")) {
		t.Error("plain errors are not recoverable")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeDecode, "x")); got != ErrCodeDecode {
		t.Errorf("GetCode = %v", got)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
}
