package merging

// MergeStatus represents the outcome of a file merge operation.
type MergeStatus string

const (
	MergeStatusClean       MergeStatus = "CLEAN"
	MergeStatusConflict    MergeStatus = "CONFLICT"
	MergeStatusBinary      MergeStatus = "BINARY"
	MergeStatusFastForward MergeStatus = "FAST_FORWARD" // Used when Ours == Base
)

// MergeResult holds the result of merging a single file.
type MergeResult struct {
	Content      []byte
	Status       MergeStatus
	HasConflicts bool
	Regions      []Region
}

// MarkerType names the side a conflict marker block belongs to.
type MarkerType string

const (
	MarkerOurs   MarkerType = "ours"
	MarkerTheirs MarkerType = "theirs"
	MarkerBase   MarkerType = "base"
)

// Marker is one side of a conflict region. Start and End are 1-based line
// numbers of the side's content; an empty side has End == Start-1.
type Marker struct {
	Start   int        `json:"start" yaml:"start"`
	End     int        `json:"end" yaml:"end"`
	Type    MarkerType `json:"type" yaml:"type"`
	Content string     `json:"content" yaml:"content"`
}

// Region is a single conflict block. Start and End are the lines holding
// the opening and closing markers.
type Region struct {
	Start  int     `json:"start" yaml:"start"`
	End    int     `json:"end" yaml:"end"`
	Ours   Marker  `json:"ours" yaml:"ours"`
	Theirs Marker  `json:"theirs" yaml:"theirs"`
	Base   *Marker `json:"base,omitempty" yaml:"base,omitempty"`
}

// MergeStrategy picks a side wholesale instead of merging text.
type MergeStrategy string

const (
	StrategyOurs   MergeStrategy = "ours"
	StrategyTheirs MergeStrategy = "theirs"
	StrategyCustom MergeStrategy = "custom"
)

// Merger abstracts the algorithm for 3-way merging.
type Merger interface {
	// Merge combines the changes ours and theirs made to base. hasBase is
	// false when the file did not exist in the merge base, which is distinct
	// from an empty base file.
	Merge(base, ours, theirs []byte, hasBase bool) (*MergeResult, error)
}
