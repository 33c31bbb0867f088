package fathom

import "testing"

func TestInvertAffineRoundTrip(t *testing.T) {
	m := [6]float64{2.5, 0, 0, 2.5, -140, 77}
	inv := invertAffine(m)

	x, y := transformPoint(m, 123.4, -56.7)
	rx, ry := transformPoint(inv, x, y)
	if !approxEqual(rx, 123.4, 1e-9) || !approxEqual(ry, -56.7, 1e-9) {
		t.Errorf("round trip = (%v,%v)", rx, ry)
	}
}

func TestInvertAffineSingular(t *testing.T) {
	if got := invertAffine([6]float64{0, 0, 0, 0, 10, 20}); got != identityAffine {
		t.Errorf("singular inverse = %v, want identity", got)
	}
}

func TestTransformPointIdentity(t *testing.T) {
	x, y := transformPoint(identityAffine, 3.5, -4.5)
	if x != 3.5 || y != -4.5 {
		t.Errorf("identity moved the point: (%v,%v)", x, y)
	}
}
