package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldExpenseID   = "expense_id"
	FieldExpenseDesc = "expense_description"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldConfidence  = "confidence"
	FieldCount       = "count"
	FieldBackend     = "backend"
	FieldTimeRange   = "time_range"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentAuth      = "auth"
	ComponentAPI       = "api"
	ComponentExpense   = "expense"
	ComponentAnalytics = "analytics"
	ComponentStore     = "store"
	ComponentAMQP      = "amqp"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentMockAPI   = "mockapi"
)

// Operations defines standard operation names
const (
	OpInitialize     = "initialize"
	OpLogin          = "login"
	OpLogout         = "logout"
	OpSignup         = "signup"
	OpRefreshToken   = "refresh_token"
	OpRefreshProfile = "refresh_profile"
	OpUpdateProfile  = "update_profile"
	OpCategorize     = "categorize"
	OpBatch          = "batch_categorize"
	OpPersist        = "persist"
	OpPublish        = "publish"
	OpExport         = "export"
	OpStartup        = "startup"
	OpShutdown       = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeStorage       = "storage_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeServer        = "server_error"
	ErrorTypeDecode        = "decode_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds the fields that identify a categorized record
func (f LogFields) WithExpense(id, desc string, amount float64, category string, confidence float64) LogFields {
	f[FieldExpenseID] = id
	f[FieldExpenseDesc] = desc
	f[FieldAmount] = amount
	f[FieldCategory] = category
	f[FieldConfidence] = confidence
	return f
}

// WithHTTPCall adds outbound request fields
func (f LogFields) WithHTTPCall(method, path string, statusCode int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode > 0 && statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
