package analysis

import (
	"context"
	"time"

	"media-cache/internal/media"
)

// Kind is the type of analysis to run.
type Kind string

// Analysis kinds.
const (
	KindSimilarity Kind = "similarity"
	KindBlur       Kind = "blur"
	KindDocument   Kind = "document"
	KindMetadata   Kind = "metadata"
)

// Task is one pending unit of analysis.
type Task struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	AssetID     string    `json:"assetId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// Result is an enrichment record produced for a task. Metadata is set by
// metadata analysis and replaces the stored record wholesale.
type Result struct {
	TaskID      string               `json:"taskId"`
	Kind        Kind                 `json:"kind"`
	AssetID     string               `json:"assetId"`
	Score       float64              `json:"score"`
	Group       string               `json:"group,omitempty"`
	Metadata    *media.AssetMetadata `json:"metadata,omitempty"`
	CompletedAt time.Time            `json:"completedAt"`
}

// Analyzer turns tasks into results. Tasks it cannot handle are omitted.
type Analyzer interface {
	Analyze(ctx context.Context, tasks []Task) ([]Result, error)
}

// ResultStore persists completed results.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, results []Result) error
}

// Update is pushed to subscribers after each processed batch.
type Update struct {
	Tasks    []Task
	AssetIDs []string
}
