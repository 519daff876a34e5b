package domain

// Registered workflow types of the procurement pipeline.
const (
	WorkflowVendorOnboarding  = "vendor_onboarding"
	WorkflowSKUCreation       = "sku_creation"
	WorkflowPriceApproval     = "price_approval"
	WorkflowPOCreation        = "po_creation"
	WorkflowGRNVerification   = "grn_verification"
	WorkflowInvoiceProcessing = "invoice_processing"
)

// Business entity types used by dependency rules.
const (
	EntityVendor = "vendor"
	EntitySKU    = "sku"
	EntityPrice  = "price"
	EntityPO     = "po"
	EntityGRN    = "grn"
)

var entityWorkflows = map[string]string{
	EntityVendor: WorkflowVendorOnboarding,
	EntitySKU:    WorkflowSKUCreation,
	EntityPrice:  WorkflowPriceApproval,
	EntityPO:     WorkflowPOCreation,
	EntityGRN:    WorkflowGRNVerification,
}

// WorkflowTypeForEntity maps an upstream entity type to the workflow type
// whose instance carries the entity's status.
func WorkflowTypeForEntity(entityType string) (string, bool) {
	wt, ok := entityWorkflows[entityType]
	return wt, ok
}

// Terminal business statuses shared across workflow types.
const (
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)
