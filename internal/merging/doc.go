// Package merging computes three-way merges between two branch tips.
//
// It works on flattened trees (path -> blob) and on file content:
//   - PlanTreeMerge decides, per path, whether to keep ours, take theirs,
//     delete, merge the text or record a conflict.
//   - TextMerger runs diff3 over a single file and injects git-style
//     conflict markers for overlapping changes.
//   - ParseRegions reads those markers back into line-addressed regions so
//     they can be resolved one at a time.
package merging
