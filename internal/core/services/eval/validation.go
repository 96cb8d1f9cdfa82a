package eval

import (
	evaldomain "evalforge/internal/core/domain/eval"
)

// Severity classifies a dataset Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one dataset validation finding, identifying the item it
// concerns where applicable.
type Diagnostic struct {
	ItemID   string   `json:"item_id,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidateDataset checks structural invariants a dataset should hold
// before it is fed to an evaluation run: unique, non-empty item ids and
// non-empty input. Grounded on the Python original's datasets/validation.py
// and datasets/utils.py, which run the same sanity checks before a run
// starts rather than failing midway through scoring.
func ValidateDataset(items []evaldomain.DatasetItem) []Diagnostic {
	var diags []Diagnostic
	seen := make(map[string]bool, len(items))

	if len(items) == 0 {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: "dataset is empty"})
		return diags
	}

	for _, item := range items {
		if item.ID == "" {
			diags = append(diags, Diagnostic{Severity: SeverityError, Message: "item has empty id"})
			continue
		}
		if seen[item.ID] {
			diags = append(diags, Diagnostic{ItemID: item.ID, Severity: SeverityError, Message: "duplicate item id"})
			continue
		}
		seen[item.ID] = true

		if len(item.Input) == 0 {
			diags = append(diags, Diagnostic{ItemID: item.ID, Severity: SeverityWarning, Message: "item has empty input"})
		}
	}

	return diags
}

// HasErrors reports whether any diagnostic is an error-level finding.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
