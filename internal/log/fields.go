package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
	FieldAccountID   = "account_id"
	FieldExternalID  = "external_id"
	FieldItemID      = "item_id"
	FieldTxnID       = "transaction_id"
	FieldBudgetID    = "budget_id"
	FieldAlertKind   = "alert_kind"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldMerchant    = "merchant"
	FieldOffset      = "offset"
	FieldFetched     = "fetched"
	FieldTotal       = "total"
	FieldAttempt     = "attempt"
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
	FieldWebhookType = "webhook_type"
	FieldWebhookCode = "webhook_code"
	FieldRecipient   = "recipient"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentSync     = "sync"
	ComponentProvider = "provider"
	ComponentStorage  = "storage"
	ComponentBudget   = "budget"
	ComponentAlert    = "alert"
	ComponentAMQP     = "amqp"
	ComponentNotify   = "notify"
	ComponentSchedule = "schedule"
)

// Operations defines standard operation names
const (
	OpSync     = "sync"
	OpUpsert   = "upsert"
	OpEvaluate = "evaluate"
	OpNotify   = "notify"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
