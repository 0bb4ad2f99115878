package media

// tsGuard keeps a timestamp sequence strictly increasing: an undefined value
// or one not greater than the previous becomes previous+1.
type tsGuard struct {
	last    int64
	started bool
}

func (g *tsGuard) next(v int64) int64 {
	if v == NoPTS {
		if g.started {
			v = g.last + 1
		} else {
			v = 0
		}
	} else if g.started && v <= g.last {
		v = g.last + 1
	}
	g.last = v
	g.started = true
	return v
}

// unitGuard fixes the timestamps of encoded units: PTS strictly increasing,
// DTS strictly increasing and never after PTS.
type unitGuard struct {
	pts     tsGuard
	lastDTS int64
	started bool
}

func (g *unitGuard) fix(p *Packet) {
	p.PTS = g.pts.next(p.PTS)

	dts := p.DTS
	if dts == NoPTS || dts > p.PTS {
		dts = p.PTS
	}
	if g.started && dts <= g.lastDTS {
		dts = min(g.lastDTS+1, p.PTS)
	}
	p.DTS = dts
	g.lastDTS = dts
	g.started = true
}
