package ice

// Select picks the candidate to apply from one inbound batch in a single
// left-to-right pass:
//   - the first host candidate wins and ends the scan;
//   - otherwise the first srflx candidate is kept, replaceable only by a later host;
//   - relay, prflx and unknown candidates are never chosen.
//
// The result is first-match, not globally optimal. ok is false when nothing
// in the batch qualifies, which callers treat as "no candidate this round".
func Select(candidates []string) (selected string, ok bool) {
	for _, c := range candidates {
		switch ParseType(c) {
		case TypeHost:
			return c, true
		case TypeServerReflexive:
			if !ok {
				selected, ok = c, true
			}
		}
	}
	return selected, ok
}
