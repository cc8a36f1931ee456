package models

// HeatmapSummary describes one finished rendering run
type HeatmapSummary struct {
	Kind       string      `json:"kind"`       // "pixel", "squadrat", "squadratino"
	Activities int         `json:"activities"` // activities accumulated
	Points     int         `json:"points"`     // screen points accumulated
	Frames     int         `json:"frames"`     // frames written to the stream
	MaxValue   uint32      `json:"max_value"`  // heatmap maximum at the end of the run
	Skipped    ImportStats `json:"skipped"`
}
