package bytecode

import (
	"math"
	"testing"
)

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Number(0), false},
		{Number(1), true},
		{Number(-0.5), true},
		{Number(math.NaN()), true},
		{Nil, false},
		{Str(""), true},
		{Array(nil), true},
	}
	for _, tc := range cases {
		if got := tc.v.Truthy(); got != tc.want {
			t.Errorf("Truthy(%s) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestEquals(t *testing.T) {
	if !Number(2).Equals(Number(2)) || Number(2).Equals(Number(3)) {
		t.Error("number equality broken")
	}
	if Number(math.NaN()).Equals(Number(math.NaN())) {
		t.Error("NaN must not equal NaN")
	}
	if !Number(0).Equals(Number(math.Copysign(0, -1))) {
		t.Error("0 must equal -0")
	}
	if Number(0).Equals(Nil) || !Nil.Equals(Nil) {
		t.Error("nil equality broken")
	}
	if !Str("a").Equals(Str("a")) || Str("a").Equals(Str("b")) {
		t.Error("string equality broken")
	}
	a := Array([]Value{Number(1), Str("x")})
	b := Array([]Value{Number(1), Str("x")})
	if !a.Equals(b) || a.Equals(Array([]Value{Number(1)})) {
		t.Error("array equality broken")
	}
	if !Tagged(3, Number(1)).Equals(Tagged(3, Number(1))) || Tagged(3, Number(1)).Equals(Tagged(4, Number(1))) {
		t.Error("tagged equality broken")
	}
}

func TestBooleanEncodesAsNumber(t *testing.T) {
	if v := Boolean(true); v.Kind != ValueNumber || v.Num != 1 {
		t.Errorf("Boolean(true) = %+v", v)
	}
	if v := Boolean(false); v.Kind != ValueNumber || v.Num != 0 {
		t.Errorf("Boolean(false) = %+v", v)
	}
}
