package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldItemID      = "item_id"
	FieldEntryID     = "entry_id"
	FieldPeriodID    = "period_id"
	FieldOwnerID     = "owner_id"
	FieldCategory    = "category"
	FieldMonth       = "month"
	FieldYear        = "year"
	FieldAmountCents = "amount_cents"
	FieldLimitCents  = "limit_cents"
	FieldSpentCents  = "spent_cents"
	FieldPercentage  = "percentage"
	FieldNextDue     = "next_due"
	FieldCycleDate   = "cycle_date"
	FieldFrequency   = "frequency"
	FieldMessageID   = "message_id"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentScheduler = "scheduler"
	ComponentTracker   = "tracker"
	ComponentGate      = "alert_gate"
	ComponentReminder  = "reminder"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentMailer    = "mailer"
)

// Operations defines standard operation names
const (
	OpMaterialize = "materialize"
	OpAdvance     = "advance"
	OpEvaluate    = "evaluate"
	OpNotify      = "notify"
	OpRemind      = "remind"
	OpStartup     = "startup"
	OpShutdown    = "shutdown"
)
