package util

import (
	"github.com/spf13/viper"
	"strings"
	"testing"
)

// TestWrapString tests the wrapping of help texts
func TestWrapString(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "empty", text: "", want: ""},
		{name: "short", text: "hello world", want: "hello world"},
		{name: "collapses spaces", text: "a   b\tc", want: "a b c"},
		{
			name: "wraps",
			text: strings.Repeat("word ", 12),
			want: "word word word word word word word word word word\nword word",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapString(tt.text); got != tt.want {
				t.Errorf("WrapString() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSelection tests the codec and transport selection
func TestSelection(t *testing.T) {
	defer viper.Reset()

	for _, name := range Transports {
		viper.Set("transport", name)
		if _, err := GetServerTransport(); err != nil {
			t.Errorf("GetServerTransport(%s) error = %v", name, err)
		}
		if _, err := GetClientTransport(); err != nil {
			t.Errorf("GetClientTransport(%s) error = %v", name, err)
		}
	}
	viper.Set("transport", "carrier-pigeon")
	if _, err := GetServerTransport(); err == nil {
		t.Errorf("GetServerTransport() accepted an invalid transport")
	}

	viper.Set("codec", "gob")
	if c, err := GetCodec(); err != nil || c.Name() != "gob" {
		t.Errorf("GetCodec() = %v, %v, want gob", c, err)
	}
	viper.Set("codec", "xml")
	if _, err := GetCodec(); err == nil {
		t.Errorf("GetCodec() accepted an invalid codec")
	}
}
