package ringbuf

import (
	"reflect"
	"testing"
)

func TestRing_FIFOEviction(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if got := r.Items(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("Items() = %v, want [3 4 5]", got)
	}
	if got := r.Newest(2); !reflect.DeepEqual(got, []int{5, 4}) {
		t.Errorf("Newest(2) = %v, want [5 4]", got)
	}
	if last, ok := r.Last(); !ok || last != 5 {
		t.Errorf("Last() = %d, %v, want 5, true", last, ok)
	}
}

func TestRing_Empty(t *testing.T) {
	r := New[string](0)
	if r.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", r.Cap())
	}
	if _, ok := r.Last(); ok {
		t.Error("Last() on empty ring should report false")
	}
	if got := r.Newest(10); len(got) != 0 {
		t.Errorf("Newest() = %v, want empty", got)
	}
}

func TestRing_NewestAll(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	r.Push(2)

	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{2, 1}},
		{-1, []int{2, 1}},
		{1, []int{2}},
		{10, []int{2, 1}},
	}
	for _, tt := range tests {
		if got := r.Newest(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Newest(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRing_Tail(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}

	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{3, 4, 5, 6}},
		{-1, []int{3, 4, 5, 6}},
		{1, []int{6}},
		{2, []int{5, 6}},
		{10, []int{3, 4, 5, 6}},
	}
	for _, tt := range tests {
		if got := r.Tail(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tail(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
	if got := New[int](2).Tail(1); len(got) != 0 {
		t.Errorf("Tail() on empty ring = %v, want empty", got)
	}
}
