package manifest

// Stable validator issue codes. Clients switch on these; messages are
// advisory only.
const (
	CodeUnknownKey              = "MANIFEST_UNKNOWN_KEY"
	CodeVersionRequired         = "MANIFEST_VERSION_REQUIRED"
	CodeModuleIDMismatch        = "MANIFEST_MODULE_ID_MISMATCH"
	CodeDuplicateID             = "MANIFEST_DUPLICATE_ID"
	CodeEntityIDInvalid         = "MANIFEST_ENTITY_ID_INVALID"
	CodeFieldTypeInvalid        = "MANIFEST_FIELD_TYPE_INVALID"
	CodeEnumOptionsInvalid      = "MANIFEST_ENUM_OPTIONS_INVALID"
	CodeLookupInvalid           = "MANIFEST_LOOKUP_INVALID"
	CodeRequiredReadonlyInvalid = "MANIFEST_FIELD_REQUIRED_READONLY_INVALID"
	CodeDefaultTypeMismatch     = "MANIFEST_DEFAULT_TYPE_MISMATCH"
	CodeUnknownEntity           = "MANIFEST_UNKNOWN_ENTITY"
	CodeExternalEntity          = "MANIFEST_EXTERNAL_ENTITY"
	CodeUnknownField            = "MANIFEST_UNKNOWN_FIELD"
	CodeViewKindInvalid         = "MANIFEST_VIEW_KIND_INVALID"
	CodeActionKindInvalid       = "MANIFEST_ACTION_KIND_INVALID"
	CodeNavTargetInvalid        = "MANIFEST_NAV_TARGET_INVALID"
	CodeBlockKindInvalid        = "MANIFEST_BLOCK_KIND_INVALID"
	CodeBlockVersionGated       = "MANIFEST_BLOCK_VERSION_GATED"
	CodeBlockDepthExceeded      = "MANIFEST_BLOCK_DEPTH_EXCEEDED"
	CodeGridInvalid             = "MANIFEST_GRID_INVALID"
	CodeTabInvalid              = "MANIFEST_TAB_INVALID"
	CodeConditionVersionGated   = "MANIFEST_CONDITION_VERSION_GATED"
	CodeWorkflowStateUnknown    = "MANIFEST_WORKFLOW_STATE_UNKNOWN"
	CodeWorkflowInvalid         = "MANIFEST_WORKFLOW_INVALID"
	CodeTriggerEventInvalid     = "MANIFEST_TRIGGER_EVENT_INVALID"
	CodeTriggerRefUnknown       = "MANIFEST_TRIGGER_REF_UNKNOWN"
	CodeStructureInvalid        = "MANIFEST_STRUCTURE_INVALID"
)
