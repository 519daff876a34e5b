package procurement

import (
	"procflow/internal/domain"
)

// dependencyFields names, per workflow type, the initial-payload fields
// that reference upstream entities.
var dependencyFields = map[string][]struct {
	field string
	kind  string
}{
	domain.WorkflowSKUCreation:       {{"vendor_id", domain.EntityVendor}},
	domain.WorkflowPriceApproval:     {{"sku_id", domain.EntitySKU}},
	domain.WorkflowPOCreation:        {{"vendor_id", domain.EntityVendor}, {"price_id", domain.EntityPrice}},
	domain.WorkflowGRNVerification:   {{"po_id", domain.EntityPO}},
	domain.WorkflowInvoiceProcessing: {{"grn_id", domain.EntityGRN}},
}

// DependencyLinks extracts the upstream links a new instance declares in
// its initial payload, for recording in the dependency table.
func DependencyLinks(workflowType, threadID string, payload map[string]any) []domain.DependencyLink {
	var links []domain.DependencyLink
	for _, dep := range dependencyFields[workflowType] {
		id, _ := payload[dep.field].(string)
		if id == "" {
			continue
		}
		links = append(links, domain.DependencyLink{
			ThreadID:          threadID,
			DependsOnThreadID: id,
			Kind:              dep.kind,
		})
	}
	return links
}
