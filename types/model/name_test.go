package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		in   string
		want Name
	}{
		{"mobilenet_v2", Name{Arch: "mobilenet_v2", Weights: "DEFAULT"}},
		{"mobilenet_v2:IMAGENET1K_V1", Name{Arch: "mobilenet_v2", Weights: "IMAGENET1K_V1"}},
		{"mobilenet_v2:", Name{Arch: "mobilenet_v2", Weights: MissingPart}},
		{":IMAGENET1K_V1", Name{Arch: MissingPart, Weights: "IMAGENET1K_V1"}},
	}

	for _, tt := range cases {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseName(tt.in))
		})
	}
}

func TestNameValidity(t *testing.T) {
	assert.True(t, ParseName("mobilenet_v2:IMAGENET1K_V1").IsValid())
	assert.True(t, ParseName("resnet-18").IsValid())
	assert.False(t, ParseName("mobilenet_v2:").IsValid())
	assert.False(t, ParseName("-bad").IsValid())
	assert.False(t, Name{Arch: "a/b", Weights: "x"}.IsValid())

	err := ParseName("mobilenet v2").Validate()
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Contains(t, err.Error(), "architecture")
}

func TestNameString(t *testing.T) {
	assert.Equal(t, "mobilenet_v2:IMAGENET1K_V1", Name{Arch: "mobilenet_v2", Weights: "IMAGENET1K_V1"}.String())
	assert.Equal(t, "mobilenet_v2", Name{Arch: "mobilenet_v2"}.String())
	assert.Equal(t, "mobilenet_v2:DEFAULT", ParseName("mobilenet_v2").LogValue().String())
}

func TestClosest(t *testing.T) {
	candidates := []string{"IMAGENET1K_V1", "IMAGENET1K_V2", "DEFAULT"}

	got, ok := Closest("imagenet1k_v1", candidates)
	assert.True(t, ok)
	assert.Equal(t, "IMAGENET1K_V1", got)

	got, ok = Closest("DEFALT", candidates)
	assert.True(t, ok)
	assert.Equal(t, "DEFAULT", got)

	_, ok = Closest("something_else_entirely", candidates)
	assert.False(t, ok)

	_, ok = Closest("x", nil)
	assert.False(t, ok)
}

func TestSuggest(t *testing.T) {
	base := errors.New("unknown architecture")

	err := Suggest(base, "mobilenetv2", []string{"mobilenet_v2"})
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), `did you mean "mobilenet_v2"?`)

	assert.Equal(t, base, Suggest(base, "vit_b_16", []string{"mobilenet_v2"}))
}
