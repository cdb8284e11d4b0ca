package rpc

import (
	"errors"
	"fmt"
	"testing"
)

func TestByRemoteAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		host string
		want string
	}{
		{name: "ipv4", host: "192.168.1.1", want: "192.168.1.1"},
		{name: "ipv6", host: "::1", want: "::1"},
		{name: "missing", host: "", want: UnknownKey},
	}

	fn := ByRemoteAddress()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("1", "echo", Connection{RemoteHost: tt.host}, nil)
			if got := fn(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestByRemotePublicKey(t *testing.T) {
	t.Parallel()

	fn := ByRemotePublicKey()

	req := NewRequest("1", "echo", Connection{RemotePublicKey: []byte{0xde, 0xad, 0xbe, 0xef}}, nil)
	if got := fn(req); got != "deadbeef" {
		t.Errorf("key = %q, want deadbeef", got)
	}

	anon := NewRequest("2", "echo", Connection{RemoteHost: "10.0.0.1"}, nil)
	if got := fn(anon); got != UnknownKey {
		t.Errorf("key = %q, want %q", got, UnknownKey)
	}
}

func TestKeyFuncFor(t *testing.T) {
	t.Parallel()

	if _, ok := KeyFuncFor(KeyByAddress); !ok {
		t.Error("KeyFuncFor(ip) should be known")
	}
	if _, ok := KeyFuncFor(KeyByPublicKey); !ok {
		t.Error("KeyFuncFor(public_key) should be known")
	}
	if _, ok := KeyFuncFor("user"); ok {
		t.Error("KeyFuncFor(user) should be unknown")
	}
}

func TestRequest_Annotations(t *testing.T) {
	t.Parallel()

	type markerKey struct{}
	req := NewRequest("1", "echo", Connection{}, nil)

	if _, ok := req.Annotation(markerKey{}); ok {
		t.Fatal("fresh request should have no annotations")
	}
	req.Annotate(markerKey{}, true)
	v, ok := req.Annotation(markerKey{})
	if !ok || v != true {
		t.Errorf("Annotation() = (%v, %v), want (true, true)", v, ok)
	}
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	if got := ErrorCode(ErrMethodNotFound); got != CodeMethodNotFound {
		t.Errorf("ErrorCode(ErrMethodNotFound) = %q", got)
	}
	wrapped := fmt.Errorf("routing: %w", ErrMethodNotFound)
	if got := ErrorCode(wrapped); got != CodeMethodNotFound {
		t.Errorf("ErrorCode(wrapped) = %q, want %q", got, CodeMethodNotFound)
	}
	if got := ErrorCode(errors.New("plain")); got != CodeInternal {
		t.Errorf("ErrorCode(plain) = %q, want %q", got, CodeInternal)
	}
}
