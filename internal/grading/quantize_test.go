package grading

import "testing"

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{10.0, 10.0},
		{9.6, 10.0},
		{9.59, 9.5},
		{9.3, 9.5},
		{9.29, 9.0},
		{8.8, 9.0},
		{8.79, 8.0},
		{8.5, 8.0},
		{8.0, 8.0},
		{7.99, 7.0},
		{6.5, 6.0},
		{5.0, 5.0},
		{4.2, 4.0},
		{3.9, 3.0},
		{2.0, 2.0},
		{1.99, 1.0},
		{1.0, 1.0},
		{0.3, 1.0},
		{11.0, 10.0},
	}

	for _, tt := range tests {
		if got := Quantize(tt.in); got != tt.want {
			t.Errorf("Quantize(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestQuantize_Idempotent(t *testing.T) {
	for x := 0.0; x <= 10.5; x += 0.01 {
		once := Quantize(x)
		if twice := Quantize(once); twice != once {
			t.Fatalf("Quantize not idempotent at %v: %v then %v", x, once, twice)
		}
	}
}

func TestQuantize_NoEightAndAHalf(t *testing.T) {
	for x := 8.0; x < 8.8; x += 0.01 {
		if got := Quantize(x); got == 8.5 {
			t.Fatalf("Quantize(%v) produced 8.5", x)
		}
	}
}
