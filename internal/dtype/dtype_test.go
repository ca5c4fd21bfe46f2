package dtype

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want DType
		ok   bool
	}{
		{"F32", F32, true},
		{"f32", F32, true},
		{"F16", F16, true},
		{"bf16", BF16, true},
		{"BF16", BF16, true},
		{"I8", Unspecified, false},
		{"", Unspecified, false},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("Parse(%q): err = %v, want ok=%v", tc.in, err, tc.ok)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSize(t *testing.T) {
	t.Parallel()

	if F32.Size() != 4 {
		t.Fatalf("F32 size: got %d", F32.Size())
	}
	if F16.Size() != 2 || BF16.Size() != 2 {
		t.Fatalf("half size: got %d/%d", F16.Size(), BF16.Size())
	}
	if Unspecified.Size() != 0 {
		t.Fatalf("unspecified size: got %d", Unspecified.Size())
	}
}

func TestEncodeDecodeF32(t *testing.T) {
	t.Parallel()

	values := []float32{0, 1, -1, 0.5, 3.14159, float32(math.Inf(1))}
	raw, err := Encode(F32, values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != len(values)*4 {
		t.Fatalf("encoded length: got %d", len(raw))
	}
	got, err := Decode(F32, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("value %d: got %v, want %v", i, got[i], values[i])
		}
	}
}

func TestCastHalfPrecision(t *testing.T) {
	t.Parallel()

	// Values exactly representable in both half formats survive the
	// round trip unchanged.
	exact := []float32{0, 1, -2, 0.5, 256}
	for _, dt := range []DType{F16, BF16} {
		got, err := Cast(dt, exact)
		if err != nil {
			t.Fatalf("%v cast: %v", dt, err)
		}
		for i := range exact {
			if got[i] != exact[i] {
				t.Fatalf("%v value %d: got %v, want %v", dt, i, got[i], exact[i])
			}
		}
	}

	// BF16 keeps only 8 mantissa bits, so nearby values collapse.
	lossy := []float32{1.0001}
	got, err := Cast(BF16, lossy)
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if got[0] == lossy[0] {
		t.Fatal("expected precision loss through bf16")
	}
	if math.Abs(float64(got[0]-lossy[0])) > 0.01 {
		t.Fatalf("bf16 error too large: got %v", got[0])
	}
}

func TestCastF32Identity(t *testing.T) {
	t.Parallel()

	values := []float32{1.0001, -3.75}
	got, err := Cast(F32, values)
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("value %d changed: got %v", i, got[i])
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	if _, err := Decode(F32, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected misaligned byte count to fail")
	}
	if _, err := Decode(Unspecified, nil); err == nil {
		t.Fatal("expected unspecified dtype to fail")
	}
	if _, err := Encode(Unspecified, []float32{1}); err == nil {
		t.Fatal("expected unspecified dtype to fail")
	}
}
