package shared

import (
	"math"
	"math/big"
	"testing"

	"github.com/pkg/errors"
)

func TestDescriptorLayout(t *testing.T) {
	d := WorkDescriptor{LowerBound: 1.5, SliceWidth: 0.25, AssignedSliceCount: 7, StartSliceIndex: 300}
	buf, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != DescriptorSize {
		t.Fatalf("encoded %d bytes, want %d", len(buf), DescriptorSize)
	}
	// count and start sit after the two float64 fields, little endian
	if buf[16] != 7 || buf[20] != 0x2c || buf[21] != 0x01 {
		t.Errorf("unexpected integer layout: % x", buf[16:])
	}

	var got WorkDescriptor
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Errorf("decoded %+v, want %+v", got, d)
	}
	if got.End() != 307 {
		t.Errorf("End() = %d, want 307", got.End())
	}
}

func TestDescriptorRejectsMalformed(t *testing.T) {
	var d WorkDescriptor
	if err := d.UnmarshalBinary(make([]byte, 10)); errors.Cause(err) != ErrMalformed {
		t.Errorf("short payload: %v", err)
	}

	buf, _ := WorkDescriptor{AssignedSliceCount: -1}.MarshalBinary()
	if err := d.UnmarshalBinary(buf); errors.Cause(err) != ErrMalformed {
		t.Errorf("negative count: %v", err)
	}

	buf, _ = WorkDescriptor{LowerBound: math.NaN()}.MarshalBinary()
	if err := d.UnmarshalBinary(buf); errors.Cause(err) != ErrMalformed {
		t.Errorf("NaN bound: %v", err)
	}
}

func TestPartialKeepsPrecision(t *testing.T) {
	sum := new(big.Float).SetPrec(DefaultPrecision).SetInt64(1)
	tiny := new(big.Float).SetPrec(DefaultPrecision).SetMantExp(big.NewFloat(1), -200)
	sum.Add(sum, tiny)

	buf, err := EncodePartial(sum)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodePartial(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(sum) != 0 {
		t.Errorf("decoded %s, want %s", got.Text('g', 80), sum.Text('g', 80))
	}
}

func TestDecodePartialRejectsGarbage(t *testing.T) {
	if _, err := DecodePartial(nil); errors.Cause(err) != ErrMalformed {
		t.Errorf("empty payload: %v", err)
	}
	if _, err := DecodePartial([]byte{0xff, 0x00}); errors.Cause(err) != ErrMalformed {
		t.Errorf("garbage payload: %v", err)
	}
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name   string
		lower  float64
		upper  float64
		slices int
		ok     bool
	}{
		{"reference", 0, 10, 1_000_000, true},
		{"single slice", -1, 1, 1, true},
		{"reversed", 10, 0, 100, true},
		{"empty", 3, 3, 100, false},
		{"zero slices", 0, 1, 0, false},
		{"too many slices", 0, 1, math.MaxInt32 + 1, false},
		{"infinite", 0, math.Inf(1), 10, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewRequest(c.lower, c.upper, c.slices)
			if c.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !c.ok && errors.Cause(err) != ErrInvalidRequest {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestSliceWidth(t *testing.T) {
	r, err := NewRequest(0, 10, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if w := r.SliceWidth(); w != 1e-5 {
		t.Errorf("SliceWidth() = %g, want 1e-5", w)
	}
}
