package discovery

import "github.com/JakeFAU/hr-contact-discovery/internal/email"

// ResultSet accumulates candidates in insertion order, keeping at most one
// entry per lowercase address. The first insertion wins; later duplicates
// never change its source or confidence. It is not safe for concurrent use.
type ResultSet struct {
	order []Candidate
	keys  map[string]struct{}
}

// NewResultSet creates an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{keys: make(map[string]struct{})}
}

// Add inserts c unless its address is invalid, its confidence is out of
// range, or an equal address is already present. It reports whether c was
// stored.
func (s *ResultSet) Add(c Candidate) bool {
	if !email.Valid(c.Address) || c.Confidence < 0 || c.Confidence > 1 {
		return false
	}
	key := email.Key(c.Address)
	if _, dup := s.keys[key]; dup {
		return false
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, c)
	return true
}

// AddAll inserts each candidate in order and returns how many were stored.
func (s *ResultSet) AddAll(cs []Candidate) int {
	added := 0
	for _, c := range cs {
		if s.Add(c) {
			added++
		}
	}
	return added
}

// Len returns the number of stored candidates.
func (s *ResultSet) Len() int {
	return len(s.order)
}

// Candidates returns a copy of the stored candidates in insertion order.
func (s *ResultSet) Candidates() []Candidate {
	return append([]Candidate{}, s.order...)
}
