package telemetry

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/mega/environment"
)

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Record(ctx, 10, map[string]float64{"a": 1, "b": 2})
	m.Record(ctx, 20, map[string]float64{"a": 3})

	want := []Point{{10, 1}, {20, 3}}
	have := m.Series("a")
	if len(have) != 2 || have[0] != want[0] || have[1] != want[1] {
		t.Errorf("series: \n\twant(%v)\n\thave(%v)", want, have)
	}
	if names := m.Names(); len(names) != 2 || names[0] != "a" {
		t.Errorf("names: \n\twant([a b])\n\thave(%v)", names)
	}
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	s, err := OpenSQLite(ctx, path, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Record(ctx, 20, map[string]float64{"loss": 0.5}); err != nil {
		t.Fatal(err)
	}
	s.Record(ctx, 10, map[string]float64{"loss": 1.0})
	s.Record(ctx, 20, map[string]float64{"loss": 0.25})

	points, err := s.Series(ctx, "loss")
	if err != nil {
		t.Fatal(err)
	}
	want := []Point{{10, 1.0}, {20, 0.25}}
	if len(points) != 2 || points[0] != want[0] || points[1] != want[1] {
		t.Errorf("series: \n\twant(%v)\n\thave(%v)", want, points)
	}

	// A second run in the same database does not see the first
	other, err := OpenSQLite(ctx, path, "other")
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	if other.RunID() == s.RunID() {
		t.Errorf("runs share an ID: %v", s.RunID())
	}
	if points, _ := other.Series(ctx, "loss"); len(points) != 0 {
		t.Errorf("other run: \n\twant(0 points)\n\thave(%v)", points)
	}
}

func TestGridImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.png")
	if err := GridImage([]float64{0, 1, 2, 3}, 2, 5, path); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Errorf("bounds: \n\twant(10x10)\n\thave(%v)", b)
	}
	if r, _, _, _ := img.At(7, 7).RGBA(); r != 0xffff {
		t.Errorf("largest value is not white: %v", r)
	}
	if r, _, _, _ := img.At(2, 2).RGBA(); r != 0 {
		t.Errorf("smallest value is not black: %v", r)
	}

	if err := GridImage([]float64{0, 1}, 2, 5, path); err == nil {
		t.Errorf("expected an error for a map of the wrong size")
	}
}

func TestReturns(t *testing.T) {
	r := NewReturns()
	r.Track([]environment.Info{{}, {Episode: &environment.Episode{
		Return: 2, Length: 4}}})
	r.Track([]environment.Info{{Episode: &environment.Episode{
		Return: 4, Length: 2}}, {}})

	if r.Pending() != 2 || r.MeanReturn() != 3 {
		t.Errorf("pending: \n\twant(2, 3)\n\thave(%v, %v)", r.Pending(),
			r.MeanReturn())
	}

	scalars := make(map[string]float64)
	r.Summarize(scalars)
	if r.Pending() != 0 || r.MeanReturn() != 0 {
		t.Errorf("pending after summary: %v", r.Pending())
	}
	if scalars["ex_raw"] != 3 || scalars["episode_length"] != 3 {
		t.Errorf("summary: \n\twant(3, 3)\n\thave(%v)", scalars)
	}

	scalars = make(map[string]float64)
	r.Summarize(scalars)
	if _, ok := scalars["ex_raw"]; ok {
		t.Errorf("summary not cleared: %v", scalars)
	}
	if r.Episodes() != 2 {
		t.Errorf("episodes: \n\twant(2)\n\thave(%v)", r.Episodes())
	}
}
