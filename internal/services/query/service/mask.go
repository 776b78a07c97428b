package service

import "querypilot/internal/services/query/domain"

// ApplyMasks replaces masked field values in place. Fields match by
// bare name across every table's mask set; rows are not bound back to
// their source table. Idempotent: re-masking a masked row changes
// nothing
func ApplyMasks(rows []map[string]any, masks map[string][]string) {
	if len(masks) == 0 {
		return
	}
	fields := map[string]bool{}
	for _, fs := range masks {
		for _, f := range fs {
			fields[f] = true
		}
	}
	for _, row := range rows {
		for f := range fields {
			if _, ok := row[f]; ok {
				row[f] = domain.MaskedValue
			}
		}
	}
}
