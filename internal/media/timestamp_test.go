package media

import "testing"

func TestFrameGuard(t *testing.T) {
	testCases := []struct {
		name string
		in   []int64
		want []int64
	}{
		{"increasing", []int64{0, 3, 6}, []int64{0, 3, 6}},
		{"undefined first", []int64{NoPTS, 5}, []int64{0, 5}},
		{"undefined later", []int64{4, NoPTS, NoPTS}, []int64{4, 5, 6}},
		{"repeated", []int64{10, 10, 10}, []int64{10, 11, 12}},
		{"going back", []int64{10, 3, 20}, []int64{10, 11, 20}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var g tsGuard
			for i, v := range tc.in {
				if got := g.next(v); got != tc.want[i] {
					t.Errorf("step %d: next(%d) = %d, want %d", i, v, got, tc.want[i])
				}
			}
		})
	}
}

func TestUnitGuard(t *testing.T) {
	testCases := []struct {
		name     string
		pts, dts []int64
		wantPTS  []int64
		wantDTS  []int64
	}{
		{
			name: "dts after pts",
			pts:  []int64{100, 200}, dts: []int64{150, 250},
			wantPTS: []int64{100, 200}, wantDTS: []int64{100, 200},
		},
		{
			name: "undefined dts",
			pts:  []int64{100, 200}, dts: []int64{NoPTS, NoPTS},
			wantPTS: []int64{100, 200}, wantDTS: []int64{100, 200},
		},
		{
			name: "reordered stream",
			pts:  []int64{300, 100, 200}, dts: []int64{0, 100, 200},
			wantPTS: []int64{300, 301, 302}, wantDTS: []int64{0, 100, 200},
		},
		{
			name: "repeated dts",
			pts:  []int64{100, 200, 300}, dts: []int64{50, 50, 50},
			wantPTS: []int64{100, 200, 300}, wantDTS: []int64{50, 51, 52},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var g unitGuard
			for i := range tc.pts {
				p := &Packet{PTS: tc.pts[i], DTS: tc.dts[i]}
				g.fix(p)
				if p.PTS != tc.wantPTS[i] || p.DTS != tc.wantDTS[i] {
					t.Errorf("step %d: got %d/%d, want %d/%d", i, p.PTS, p.DTS, tc.wantPTS[i], tc.wantDTS[i])
				}
				if p.DTS > p.PTS {
					t.Errorf("step %d: dts %d after pts %d", i, p.DTS, p.PTS)
				}
			}
		})
	}
}

func TestRescale(t *testing.T) {
	testCases := []struct {
		name     string
		v        int64
		from, to Rational
		want     int64
	}{
		{"frames to mpeg clock", 30, Rational{1, 30}, MPEGClock, 90000},
		{"microseconds to frames", 1_000_000, Microseconds, Rational{1, 30}, 30},
		{"rounds to nearest", 16_667, Microseconds, Rational{1, 30}, 1},
		{"negative", -30, Rational{1, 30}, MPEGClock, -90000},
		{"undefined passes through", NoPTS, Microseconds, MPEGClock, NoPTS},
		{"invalid base passes through", 7, Rational{}, MPEGClock, 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Rescale(tc.v, tc.from, tc.to); got != tc.want {
				t.Errorf("Rescale(%d) = %d, want %d", tc.v, got, tc.want)
			}
		})
	}
}
