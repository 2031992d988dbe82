package tagger

// Reduce collapses a directive list so that each tag appears once.
//
// The last directive for a tag wins. The list is scanned from the end and the
// first occurrence of each tag is kept, then the kept directives are put back
// into forward order, so every winner sits where its last occurrence was
// relative to the other winners.
func Reduce(ds []Directive) []Directive {
	if len(ds) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ds))
	kept := make([]Directive, 0, len(ds))
	for i := len(ds) - 1; i >= 0; i-- {
		d := ds[i]
		if _, ok := seen[d.Tag]; ok {
			continue
		}
		seen[d.Tag] = struct{}{}
		kept = append(kept, d)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
