package mansion

// FactResult is sent for each (path, key, value) in json mode
//
// For commands `walk` and `validate`
type FactResult struct {
	Type      string   `json:"type"`
	Path      string   `json:"path"`
	Key       string   `json:"key"`
	Value     string   `json:"value"`
	Claimants []string `json:"claimants"`
}

// StatementResult is sent for each statement recorded during a pass
type StatementResult struct {
	Type     string `json:"type"`
	Polarity string `json:"polarity"`
	Path     string `json:"path"`
	Message  string `json:"message"`
}

// PackageResult sums up one processed package
//
// For commands `walk`, `validate`, `rewrite` and `batch`
type PackageResult struct {
	Type          string   `json:"type"`
	Path          string   `json:"path"`
	Flavor        string   `json:"flavor"`
	Paths         int      `json:"paths"`
	Disagreements []string `json:"disagreements"`
	Error         string   `json:"error,omitempty"`
	RunID         string   `json:"runId,omitempty"`
	DurationMs    int64    `json:"durationMs"`
}

// EntryResult is sent for each entry by `ls`
type EntryResult struct {
	Type  string `json:"type"`
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Size  int64  `json:"size"`
	Depth int    `json:"depth"`
}
