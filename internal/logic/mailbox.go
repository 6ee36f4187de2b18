package logic

// ExtractOnlyMatch returns the single message of the given kind in the batch.
// It reports false when there is no match or more than one: a silent sensor
// and a babbling one are equally untrustworthy.
func ExtractOnlyMatch(kind Kind, batch []Message) (Message, bool) {
	var match Message
	found := false
	for _, m := range batch {
		if m.Kind != kind {
			continue
		}
		if found {
			return Message{}, false
		}
		match = m
		found = true
	}
	return match, found
}

// ExtractAllMatches returns every message of the given kind, in batch order.
func ExtractAllMatches(kind Kind, batch []Message) []Message {
	var matches []Message
	for _, m := range batch {
		if m.Kind == kind {
			matches = append(matches, m)
		}
	}
	return matches
}

// hasIndexed reports whether any message of the given kind names pump i.
func hasIndexed(kind Kind, i int, batch []Message) bool {
	for _, m := range batch {
		if m.Kind == kind && m.Pump == i {
			return true
		}
	}
	return false
}
