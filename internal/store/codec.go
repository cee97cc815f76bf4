package store

import "github.com/arjunp-dev/ledgermind/internal/domain"

// pgx encodes nil Go slices and maps as SQL NULL, which the schema's
// NOT NULL array and jsonb columns reject. Inserts substitute empty
// values so an absent collection lands as '{}' / '[]', not NULL.

func nonNullStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNullRefs(refs []domain.ExternalRef) []domain.ExternalRef {
	if refs == nil {
		return []domain.ExternalRef{}
	}
	return refs
}

func nonNullEvidence(m map[domain.EvidenceType]float64) map[domain.EvidenceType]float64 {
	if m == nil {
		return map[domain.EvidenceType]float64{}
	}
	return m
}
