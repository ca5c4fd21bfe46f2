package tensor

import (
	"strings"
	"testing"
)

func TestNumElements(t *testing.T) {
	t.Parallel()

	cases := []struct {
		shape []int
		want  int
	}{
		{nil, 0},
		{[]int{4}, 4},
		{[]int{2, 3}, 6},
		{[]int{2, 0, 5}, 0},
	}
	for _, tc := range cases {
		if got := NumElements(tc.shape); got != tc.want {
			t.Fatalf("NumElements(%v) = %d, want %d", tc.shape, got, tc.want)
		}
	}
}

func TestZeros(t *testing.T) {
	t.Parallel()

	z := Zeros(3, 2)
	if len(z.Data) != 6 {
		t.Fatalf("data length: got %d", len(z.Data))
	}
	if err := z.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for i, v := range z.Data {
		if v != 0 {
			t.Fatalf("element %d not zero: %v", i, v)
		}
	}
}

func TestValidateMismatch(t *testing.T) {
	t.Parallel()

	bad := Tensor{Data: make([]float32, 5), Shape: []int{2, 3}}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if !strings.Contains(err.Error(), "6 elements") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStateDictMerge(t *testing.T) {
	t.Parallel()

	dst := StateDict{"a": Zeros(1), "b": Zeros(2)}
	src := StateDict{"b": Zeros(3), "c": Zeros(4)}
	dst.Merge(src)

	if len(dst) != 3 {
		t.Fatalf("merged size: got %d", len(dst))
	}
	if len(dst["b"].Data) != 3 {
		t.Fatalf("merge did not overwrite: b has %d elements", len(dst["b"].Data))
	}
}

func TestShardedFilter(t *testing.T) {
	t.Parallel()

	d := ShardedStateDict{
		"decoder.weight":                ShardedSpec{Key: "decoder.weight", Shape: []int{4, 4}},
		"decoder.adapter.lora_a.weight": ShardedSpec{Key: "decoder.adapter.lora_a.weight", Shape: []int{4, 2}},
	}
	got := d.Filter(func(key string) bool { return strings.Contains(key, ".adapter.") })
	if len(got) != 1 {
		t.Fatalf("filtered size: got %d", len(got))
	}
	if _, ok := got["decoder.adapter.lora_a.weight"]; !ok {
		t.Fatal("adapter key missing after filter")
	}
}
