package store

import (
	"fmt"

	"github.com/pavelanni/smartquiz/internal/model"
)

// ExportGenerations returns every generation joined with its summary text,
// oldest first.
func (s *Store) ExportGenerations() ([]model.GenerationRecord, error) {
	gens, err := s.ListGenerations(0)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}

	summaries := make(map[int64]string)
	records := make([]model.GenerationRecord, 0, len(gens))
	for i := len(gens) - 1; i >= 0; i-- {
		g := gens[i]
		text, ok := summaries[g.SummaryID]
		if !ok {
			sum, err := s.GetSummary(g.SummaryID)
			if err != nil {
				return nil, fmt.Errorf("get summary %d: %w", g.SummaryID, err)
			}
			text = sum.Text
			summaries[g.SummaryID] = text
		}
		records = append(records, model.GenerationRecord{Generation: g, Summary: text})
	}
	return records, nil
}
