package geometry

import "testing"

func TestScalePolygonClamps(t *testing.T) {
	from := Size{Width: 100, Height: 100}
	to := Size{Width: 50, Height: 200}
	pts := []Point{{X: 100, Y: 0}, {X: 0, Y: 100}}
	scaled := ScalePolygon(pts, from, to)
	if scaled[0].X != to.Width-1 {
		t.Fatalf("expected clamp to %d, got %d", to.Width-1, scaled[0].X)
	}
	if scaled[1].Y != to.Height-1 {
		t.Fatalf("expected clamp to %d, got %d", to.Height-1, scaled[1].Y)
	}
}

func square() []Point {
	return []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
}

func TestPointInPolygonCenter(t *testing.T) {
	if !PointInPolygon(Point{X: 5, Y: 5}, square()) {
		t.Fatal("expected center point to be inside")
	}
}

func TestPointInPolygonOutside(t *testing.T) {
	if PointInPolygon(Point{X: 50, Y: 50}, square()) {
		t.Fatal("expected far point to be outside")
	}
}

func TestPointInPolygonEdgeTolerance(t *testing.T) {
	// Three pixels outside the right edge — within the 5px hysteresis band.
	if !PointInPolygon(Point{X: 13, Y: 5}, square()) {
		t.Fatal("expected point within tolerance to count as inside")
	}
	// Far enough outside that tolerance no longer applies.
	if PointInPolygon(Point{X: 30, Y: 5}, square()) {
		t.Fatal("expected point outside tolerance to be outside")
	}
}

func TestLineCrossingDetectsIntersection(t *testing.T) {
	p1, p2 := Point{X: 0, Y: 0}, Point{X: 10, Y: 0}
	prev, curr := Point{X: 5, Y: -5}, Point{X: 5, Y: 5}
	if !LineCrossing(prev, curr, p1, p2) {
		t.Fatal("expected segment to cross the line")
	}
}

func TestLineCrossingNoIntersection(t *testing.T) {
	p1, p2 := Point{X: 0, Y: 0}, Point{X: 10, Y: 0}
	prev, curr := Point{X: 5, Y: 5}, Point{X: 6, Y: 6}
	if LineCrossing(prev, curr, p1, p2) {
		t.Fatal("expected no crossing")
	}
}

func TestCrossingDirectionFlipsWithCrossProductSign(t *testing.T) {
	p1, p2 := Point{X: 0, Y: 0}, Point{X: 10, Y: 0}

	downward := CrossingDirection(Point{X: 5, Y: -5}, Point{X: 5, Y: 5}, p1, p2)
	upward := CrossingDirection(Point{X: 5, Y: 5}, Point{X: 5, Y: -5}, p1, p2)

	if downward == upward {
		t.Fatalf("expected opposite movement to flip direction, got %s both times", downward)
	}
}
