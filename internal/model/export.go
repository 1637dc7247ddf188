package model

import "time"

// GenerationExport is the top-level JSON structure for the generation audit export.
type GenerationExport struct {
	ExportedAt  time.Time          `json:"exported_at"`
	Models      []string           `json:"models"`
	Total       int                `json:"total"`
	Failed      int                `json:"failed"`
	Generations []GenerationRecord `json:"generations"`
}

// GenerationRecord joins a generation with the summary it was made from.
type GenerationRecord struct {
	Generation
	Summary string `json:"summary"`
}
