package store

// contractCorpus is the three-clause corpus used throughout the tests.
func contractCorpus() []Document {
	return []Document{
		{ID: "D1", Text: "governed by the laws of New York"},
		{ID: "D2", Text: "neither party shall be liable"},
		{ID: "D3", Text: "automatic renewal unless terminated"},
	}
}

func ids(entries []RankedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.DocID
	}
	return out
}
