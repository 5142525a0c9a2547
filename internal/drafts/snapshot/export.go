package snapshot

import (
	"encoding/json"
	"time"
)

const ExportKind = "draft_snapshot"

// ExportDocument is the plain, self-contained form of a snapshot used for
// downloads and durable copies. It holds no live references.
type ExportDocument struct {
	Kind       string    `json:"kind"`
	HistoryKey string    `json:"history_key"`
	ExportedAt time.Time `json:"exported_at"`
	Snapshot   Snapshot  `json:"snapshot"`
}

func NewExportDocument(historyKey string, s Snapshot, now time.Time) ExportDocument {
	return ExportDocument{
		Kind:       ExportKind,
		HistoryKey: historyKey,
		ExportedAt: now.UTC(),
		Snapshot:   s.Clone(),
	}
}

func (d ExportDocument) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
