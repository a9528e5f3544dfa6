package quorum

// Candidate is a distinct value observed during a vote and how many
// mechanisms returned it.
type Candidate struct {
	Value string
	Count int
}

// Vote is the outcome of counting a set of observed values.
type Vote struct {
	Winner string
	Found  bool
	// Candidates holds every distinct value in first-seen order.
	Candidates []Candidate
}

// Total returns the number of observations counted.
func (v Vote) Total() int {
	total := 0
	for _, c := range v.Candidates {
		total += c.Count
	}
	return total
}

// CountFor returns the number of observations of value.
func (v Vote) CountFor(value string) int {
	for _, c := range v.Candidates {
		if c.Value == value {
			return c.Count
		}
	}
	return 0
}

// Tally returns the most frequent value in values.
// Among values sharing the highest count, the one seen first in values wins.
// That is not always the value that reached the peak count first: for
// [a b b a] the winner is a, although b reached two observations earlier.
// Returns false if values is empty.
func Tally(values []string) (string, bool) {
	vote := Count(values)
	return vote.Winner, vote.Found
}

// Count tallies values like Tally and also reports per-candidate counts.
func Count(values []string) Vote {
	index := make(map[string]int, len(values))
	candidates := make([]Candidate, 0, len(values))
	vote := Vote{}
	leader, max := -1, 0

	for _, val := range values {
		i, seen := index[val]
		if !seen {
			i = len(candidates)
			index[val] = i
			candidates = append(candidates, Candidate{Value: val})
		}
		candidates[i].Count++

		// Candidates are indexed in first-seen order, so a lower index
		// breaks a tie at the peak.
		count := candidates[i].Count
		if count > max || (count == max && i < leader) {
			leader, max = i, count
		}
	}

	if leader >= 0 {
		vote.Winner = candidates[leader].Value
		vote.Found = true
	}

	vote.Candidates = candidates
	return vote
}
