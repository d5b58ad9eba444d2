// registry.go: fixed mapping from sync targets to remote tables and columns
package centralstore

import (
	"fmt"
	"sort"

	"github.com/tphakala/fieldsync-go/internal/errors"
)

// targetSpec describes one remote entity kind the queue may address.
type targetSpec struct {
	table     string
	keyColumn string
	required  []string
	optional  []string
}

// targetRegistry is the fixed table of column templates. Unknown targets
// and payloads missing required columns are permanent errors.
var targetRegistry = map[string]targetSpec{
	"work_order": {
		table:     "work_orders",
		keyColumn: "id",
		required:  []string{"status"},
		optional:  []string{"started_at", "completed_at", "completion_note", "voice_activated"},
	},
	"intervention_note": {
		table:     "intervention_notes",
		keyColumn: "id",
		required:  []string{"work_order_id", "note_text", "note_type", "technician_id", "created_at"},
	},
	"issue": {
		table:     "issues",
		keyColumn: "id",
		required:  []string{"work_order_id", "description", "severity", "reported_by", "reported_via", "created_at"},
	},
	"media_descriptor": {
		table:     "media_descriptors",
		keyColumn: "id",
		required:  []string{"work_order_id", "blob_uri", "kind", "uploaded_at"},
		optional:  []string{"transcript"},
	},
	"voice_history": {
		table:     "voice_history",
		keyColumn: "id",
		required:  []string{"work_order_id", "kind", "transcript", "confidence", "processed_at"},
	},
}

// lookupTarget resolves a target name, validating the payload against the
// column template. Returns the spec and the payload columns in canonical
// order.
func lookupTarget(target string, payload map[string]string) (targetSpec, []string, error) {
	spec, found := targetRegistry[target]
	if !found {
		return targetSpec{}, nil, errors.New(fmt.Errorf("%w: %q", errors.ErrUnknownTarget, target)).
			Component("centralstore").
			Category(errors.CategoryValidation).
			Build()
	}

	allowed := make(map[string]bool, len(spec.required)+len(spec.optional))
	for _, col := range spec.required {
		if _, present := payload[col]; !present {
			return targetSpec{}, nil, errors.Newf("target %q payload missing required column %q", target, col).
				Component("centralstore").
				Category(errors.CategoryValidation).
				Context("target", target).
				Build()
		}
		allowed[col] = true
	}
	for _, col := range spec.optional {
		allowed[col] = true
	}

	columns := make([]string, 0, len(payload))
	for col := range payload {
		if !allowed[col] {
			return targetSpec{}, nil, errors.Newf("target %q payload has unknown column %q", target, col).
				Component("centralstore").
				Category(errors.CategoryValidation).
				Context("target", target).
				Build()
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return spec, columns, nil
}

// KnownTargets returns the registered target names, sorted.
func KnownTargets() []string {
	names := make([]string, 0, len(targetRegistry))
	for name := range targetRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
