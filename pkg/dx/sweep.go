package dx

import "fmt"

// Beam is one angular sample of a sweep. Bin counts are not forced to
// be equal across beams; files with irregular beam lengths decode to
// ragged sweeps.
type Beam struct {
	Azimuth   float64
	Elevation float64
	DBZ       []float64 // reflectivity per range bin
	Clutter   []bool    // per-bin clutter flag
}

// Sweep is the decoded content of one DX file: the beams in file order
// plus the header attributes. Beams are never re-sorted, even when
// azimuths are not ascending, and unusual ray counts are preserved.
type Sweep struct {
	Header Header
	Beams  []Beam
}

// Rectangular reports whether every beam has the same bin count. When
// it does, rays and bins describe the sweep's grid shape.
func (s *Sweep) Rectangular() (rays, bins int, ok bool) {
	if len(s.Beams) == 0 {
		return 0, 0, true
	}
	bins = len(s.Beams[0].DBZ)
	for _, b := range s.Beams[1:] {
		if len(b.DBZ) != bins {
			return len(s.Beams), 0, false
		}
	}
	return len(s.Beams), bins, true
}

// Ragged reports whether beams have unequal bin counts.
func (s *Sweep) Ragged() bool {
	_, _, ok := s.Rectangular()
	return !ok
}

// Grid returns the reflectivity values as a rays-by-bins matrix. It
// fails on ragged sweeps; use the per-beam slices in that case.
func (s *Sweep) Grid() ([][]float64, error) {
	rays, _, ok := s.Rectangular()
	if !ok {
		return nil, fmt.Errorf("sweep is ragged: %d beams with unequal bin counts", rays)
	}
	grid := make([][]float64, len(s.Beams))
	for i, b := range s.Beams {
		grid[i] = b.DBZ
	}
	return grid, nil
}

// Azimuths returns the per-beam azimuth angles in file order.
func (s *Sweep) Azimuths() []float64 {
	out := make([]float64, len(s.Beams))
	for i, b := range s.Beams {
		out[i] = b.Azimuth
	}
	return out
}

// Elevations returns the per-beam elevation angles in file order.
func (s *Sweep) Elevations() []float64 {
	out := make([]float64, len(s.Beams))
	for i, b := range s.Beams {
		out[i] = b.Elevation
	}
	return out
}
