package merging

import (
	"strings"
	"testing"
)

func TestTextMerger_Merge_CleanMerge(t *testing.T) {
	// Target changed line 2, source changed line 4
	// Non-overlapping changes should merge cleanly
	base := []byte("line 1\nline 2\nline 3\nline 4\n")
	ours := []byte("line 1\nline 2 changed on main\nline 3\nline 4\n")
	theirs := []byte("line 1\nline 2\nline 3\nline 4 changed on feature\n")

	merger := NewTextMerger("main", "feature")
	result, err := merger.Merge(base, ours, theirs, true)

	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusClean {
		t.Errorf("Expected MergeStatusClean, got %v", result.Status)
	}

	if result.HasConflicts {
		t.Error("Expected no conflicts")
	}

	content := string(result.Content)
	if !strings.Contains(content, "line 2 changed on main") {
		t.Error("Change to line 2 was lost")
	}
	if !strings.Contains(content, "line 4 changed on feature") {
		t.Error("Change to line 4 was lost")
	}
}

func TestTextMerger_Merge_ConflictMarkers(t *testing.T) {
	// Both branches changed line 2 - should create conflict
	base := []byte("line 1\nline 2\nline 3\n")
	ours := []byte("line 1\nline 2 changed on main\nline 3\n")
	theirs := []byte("line 1\nline 2 changed on feature\nline 3\n")

	merger := NewTextMerger("main", "feature")
	result, err := merger.Merge(base, ours, theirs, true)

	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusConflict {
		t.Errorf("Expected MergeStatusConflict, got %v", result.Status)
	}

	if !result.HasConflicts {
		t.Error("Expected HasConflicts to be true")
	}

	content := string(result.Content)

	if !strings.Contains(content, "<<<<<<< main") {
		t.Error("Missing labelled conflict start marker")
	}
	if !strings.Contains(content, "=======") {
		t.Error("Missing conflict separator")
	}
	if !strings.Contains(content, ">>>>>>> feature") {
		t.Error("Missing labelled conflict end marker")
	}

	if len(result.Regions) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(result.Regions))
	}
	if result.Regions[0].Ours.Content != "line 2 changed on main" {
		t.Errorf("Ours side = %q", result.Regions[0].Ours.Content)
	}
	if result.Regions[0].Theirs.Content != "line 2 changed on feature" {
		t.Errorf("Theirs side = %q", result.Regions[0].Theirs.Content)
	}

	want := "line 1\n<<<<<<< main\nline 2 changed on main\n=======\nline 2 changed on feature\n>>>>>>> feature\nline 3\n"
	if content != want {
		t.Errorf("Merged content = %q, want %q", content, want)
	}
	if !HasConflictMarkers(result.Content) {
		t.Error("Merged content should be detected as conflicted")
	}
}

func TestTextMerger_Merge_KeepsFinalNewline(t *testing.T) {
	base := []byte("line 1\nline 2\nline 3\nline 4\n")
	ours := []byte("line 1\nline 2 changed on main\nline 3\nline 4\n")
	theirs := []byte("line 1\nline 2\nline 3\nline 4 changed on feature\n")

	result, err := NewTextMerger("main", "feature").Merge(base, ours, theirs, true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := "line 1\nline 2 changed on main\nline 3\nline 4 changed on feature\n"
	if string(result.Content) != want {
		t.Errorf("Merged content = %q, want %q", result.Content, want)
	}
}

func TestTextMerger_Merge_NoFinalNewline(t *testing.T) {
	result, err := NewTextMerger("main", "feature").Merge([]byte("a\nb\nc"), []byte("A\nb\nc"), []byte("a\nb\nC"), true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if string(result.Content) != "A\nb\nC" {
		t.Errorf("Merged content = %q, want %q", result.Content, "A\nb\nC")
	}
}

func TestTextMerger_Merge_MarkerLikeContentUntouched(t *testing.T) {
	base := []byte("title\n=========\nbody\n")
	ours := []byte("title\n=========\nbody on main\n")
	theirs := []byte("title\n=========\nbody on feature\n")

	result, err := NewTextMerger("main", "feature").Merge(base, ours, theirs, true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := "title\n=========\n<<<<<<< main\nbody on main\n=======\nbody on feature\n>>>>>>> feature\n"
	if string(result.Content) != want {
		t.Errorf("Merged content = %q, want %q", result.Content, want)
	}
	if len(result.Regions) != 1 {
		t.Errorf("Expected 1 region, got %d", len(result.Regions))
	}
}

func TestTextMerger_Merge_IdenticalContent(t *testing.T) {
	base := []byte("line 1\nline 2\n")
	ours := []byte("line 1\nline 2\nline 3\n")
	theirs := []byte("line 1\nline 2\nline 3\n")

	result, err := NewTextMerger("", "").Merge(base, ours, theirs, true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusClean {
		t.Errorf("Expected MergeStatusClean, got %v", result.Status)
	}
	if string(result.Content) != string(ours) {
		t.Error("Content should match ours")
	}
}

func TestTextMerger_Merge_FastForward_OursUnchanged(t *testing.T) {
	base := []byte("line 1\nline 2\n")
	ours := []byte("line 1\nline 2\n")
	theirs := []byte("line 1\nline 2\nline 3\n")

	result, err := NewTextMerger("", "").Merge(base, ours, theirs, true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusFastForward {
		t.Errorf("Expected MergeStatusFastForward, got %v", result.Status)
	}
	if string(result.Content) != string(theirs) {
		t.Error("Content should match theirs")
	}
}

func TestTextMerger_Merge_TheirsUnchanged(t *testing.T) {
	base := []byte("line 1\nline 2\n")
	ours := []byte("line 1\nline 2\nlocal addition\n")
	theirs := []byte("line 1\nline 2\n")

	result, err := NewTextMerger("", "").Merge(base, ours, theirs, true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusClean {
		t.Errorf("Expected MergeStatusClean, got %v", result.Status)
	}
	if string(result.Content) != string(ours) {
		t.Error("Content should match ours")
	}
}

func TestTextMerger_Merge_EmptyBaseStillConflicts(t *testing.T) {
	// An empty file in the merge base is a real base, not a missing one
	result, err := NewTextMerger("main", "feature").Merge([]byte(""), []byte("A"), []byte("B"), true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusConflict {
		t.Fatalf("Expected MergeStatusConflict, got %v", result.Status)
	}
	want := "<<<<<<< main\nA\n=======\nB\n>>>>>>> feature"
	if string(result.Content) != want {
		t.Errorf("Merged content = %q, want %q", result.Content, want)
	}
	if len(result.Regions) != 1 {
		t.Errorf("Expected 1 region, got %d", len(result.Regions))
	}
}

func TestTextMerger_Merge_AddAdd(t *testing.T) {
	result, err := NewTextMerger("", "").Merge(nil, []byte("created on main\n"), []byte("created on feature\n"), false)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if !result.HasConflicts {
		t.Error("Different additions of the same path should conflict")
	}
}

func TestTextMerger_Merge_Binary(t *testing.T) {
	base := []byte{0x00, 0x01}
	ours := []byte{0x00, 0x02}
	theirs := []byte{0x00, 0x03}

	result, err := NewTextMerger("", "").Merge(base, ours, theirs, true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusBinary {
		t.Errorf("Expected MergeStatusBinary, got %v", result.Status)
	}
	if !result.HasConflicts {
		t.Error("Binary changes on both sides should conflict")
	}
	if string(result.Content) != string(ours) {
		t.Error("Binary conflict should keep ours")
	}
	if len(result.Regions) != 0 {
		t.Error("Binary conflict should have no regions")
	}
}

func TestTextMerger_Merge_MultipleConflicts(t *testing.T) {
	base := []byte("line 1\nline 2\nline 3\nline 4\n")
	ours := []byte("line 1 main\nline 2\nline 3 main\nline 4\n")
	theirs := []byte("line 1 feature\nline 2\nline 3 feature\nline 4\n")

	result, err := NewTextMerger("main", "feature").Merge(base, ours, theirs, true)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Status != MergeStatusConflict {
		t.Errorf("Expected MergeStatusConflict, got %v", result.Status)
	}

	if len(result.Regions) < 2 {
		t.Errorf("Expected at least 2 regions, got %d", len(result.Regions))
	}
}
