package conflicts

import (
	"github.com/gitmerge/gitmerge/internal/merging"
)

// Status is where a conflicted file is in its review.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusReviewing  Status = "reviewing"
	StatusResolved   Status = "resolved"
)

// Type classifies how a file differs between the two branches.
type Type = merging.ConflictType

const (
	TypeAdd    = merging.ConflictAdd
	TypeModify = merging.ConflictModify
	TypeDelete = merging.ConflictDelete
)

// Region is a conflict block plus its review state.
type Region struct {
	merging.Region `yaml:",inline"`
	Resolved       bool   `json:"resolved" yaml:"resolved"`
	Resolution     string `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// RegionsFrom wraps parsed regions, all unresolved.
func RegionsFrom(parsed []merging.Region) []Region {
	out := make([]Region, len(parsed))
	for i, r := range parsed {
		out[i] = Region{Region: r}
	}
	return out
}

// File is one path left conflicted by a merge. OriginalContent is the
// content as the merge produced it (with markers), CurrentContent is the
// edited version.
type File struct {
	Path            string   `json:"path" yaml:"path"`
	Status          Status   `json:"status" yaml:"status"`
	Type            Type     `json:"type" yaml:"type"`
	OriginalContent string   `json:"originalContent" yaml:"originalContent"`
	CurrentContent  string   `json:"currentContent" yaml:"currentContent"`
	Regions         []Region `json:"regions" yaml:"regions"`
	Binary          bool     `json:"binary,omitempty" yaml:"binary,omitempty"`
}

func (f File) clone() File {
	out := f
	if f.Regions != nil {
		out.Regions = make([]Region, len(f.Regions))
		for i, r := range f.Regions {
			out.Regions[i] = r
			if r.Base != nil {
				base := *r.Base
				out.Regions[i].Base = &base
			}
		}
	}
	return out
}

// Stats counts files by status. It is always derived from the file set.
type Stats struct {
	Total      int `json:"total" yaml:"total"`
	Resolved   int `json:"resolved" yaml:"resolved"`
	Unresolved int `json:"unresolved" yaml:"unresolved"`
	Reviewing  int `json:"reviewing" yaml:"reviewing"`
}

// Resolution resolves a file wholesale. Strategy records how Content was
// derived; the store does not interpret it. A nil Content keeps the current
// content.
type Resolution struct {
	File     string                `json:"file" yaml:"file"`
	Strategy merging.MergeStrategy `json:"strategy" yaml:"strategy"`
	Content  *string               `json:"content,omitempty" yaml:"content,omitempty"`
}

// Update is a partial file update; nil fields are left alone.
type Update struct {
	Status          *Status
	Type            *Type
	OriginalContent *string
	CurrentContent  *string
	Regions         []Region
}

// Session is a copy of the store's state, safe to hand to readers.
type Session struct {
	SourceBranch string `json:"sourceBranch" yaml:"sourceBranch"`
	TargetBranch string `json:"targetBranch" yaml:"targetBranch"`
	Files        []File `json:"files" yaml:"files"`
	Stats        Stats  `json:"stats" yaml:"stats"`
	CurrentFile  string `json:"currentFile,omitempty" yaml:"currentFile,omitempty"`
}

// DirGroup lists the files of one directory, as the file list shows them.
type DirGroup struct {
	Dir   string `json:"dir" yaml:"dir"`
	Files []File `json:"files" yaml:"files"`
}
