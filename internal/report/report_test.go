package report

import (
	"errors"
	"strings"
	"testing"
)

func TestRecoverSwallowsPanic(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover("test")
		panic("boom")
	}()
	<-done
}

func TestRecoverToPassesPanic(t *testing.T) {
	var got error
	func() {
		defer RecoverTo("test", func(err error) { got = err })
		panic("boom")
	}()
	if got == nil || !strings.Contains(got.Error(), "boom") {
		t.Errorf("error: got %v, want one mentioning boom", got)
	}

	got = nil
	func() {
		defer RecoverTo("test", func(err error) { got = err })
	}()
	if got != nil {
		t.Errorf("no panic: got %v, want nil", got)
	}
}

func TestDisabledWithoutDSN(t *testing.T) {
	if err := Init("", "test", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Enabled() {
		t.Error("reporting enabled without a DSN")
	}
	Error("test", errors.New("ignored"))
	Flush()
}
