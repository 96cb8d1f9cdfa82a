package errors

// HTTP status codes for different error types
const (
	StatusValidationError     = 400
	StatusNotFoundError       = 404
	StatusConflictError       = 409
	StatusInternalError       = 500
	StatusBadRequestError     = 400
	StatusServiceUnavailable  = 503
	StatusNotImplementedError = 501
)

// Business error codes for the evaluation domain.
const (
	// Task lifecycle
	CodeTaskNotFound        = "TASK_NOT_FOUND"
	CodeInvalidTransition   = "TASK_INVALID_TRANSITION"
	CodeTaskAlreadyTerminal = "TASK_ALREADY_TERMINAL"

	// Dataset loading
	CodeDatasetLoadFailed  = "DATASET_LOAD_FAILED"
	CodeDatasetItemInvalid = "DATASET_ITEM_INVALID"

	// Policy / guardrail
	CodePolicyValidationFailed = "POLICY_VALIDATION_FAILED"
	CodePolicyNotFound         = "POLICY_NOT_FOUND"
	CodePolicyAlreadyExists    = "POLICY_ALREADY_EXISTS"

	// Registries
	CodeAdapterNotRegistered = "ADAPTER_NOT_REGISTERED"
	CodeScorerNotRegistered  = "SCORER_NOT_REGISTERED"
	CodeSinkNotRegistered    = "SINK_NOT_REGISTERED"

	// Workflow
	CodeWorkflowActivityFailed = "WORKFLOW_ACTIVITY_FAILED"

	// Configuration
	CodeConfigInvalid = "CONFIG_INVALID"
)

// ErrorCodeToMessage maps error codes to human-readable messages.
var ErrorCodeToMessage = map[string]string{
	CodeTaskNotFound:        "task not found",
	CodeInvalidTransition:   "invalid task state transition",
	CodeTaskAlreadyTerminal: "task is already in a terminal state",

	CodeDatasetLoadFailed:  "failed to load dataset",
	CodeDatasetItemInvalid: "dataset item is invalid",

	CodePolicyValidationFailed: "policy failed validation",
	CodePolicyNotFound:         "policy not found",
	CodePolicyAlreadyExists:    "a policy with this name is already registered",

	CodeAdapterNotRegistered: "adapter not registered",
	CodeScorerNotRegistered:  "scorer not registered",
	CodeSinkNotRegistered:    "sink not registered",

	CodeWorkflowActivityFailed: "workflow activity failed after exhausting retries",

	CodeConfigInvalid: "invalid configuration",
}

// GetErrorMessage returns a human-readable message for the given error code.
func GetErrorMessage(code string) string {
	if message, ok := ErrorCodeToMessage[code]; ok {
		return message
	}
	return "an error occurred"
}

// NewErrorWithCode creates a new AppError carrying a specific business error code.
func NewErrorWithCode(code string, details string) *AppError {
	message := GetErrorMessage(code)

	var errorType AppErrorType
	switch code {
	case CodeTaskNotFound, CodePolicyNotFound:
		errorType = NotFoundError
	case CodePolicyAlreadyExists, CodeTaskAlreadyTerminal:
		errorType = ConflictError
	case CodeInvalidTransition, CodeDatasetItemInvalid, CodePolicyValidationFailed, CodeConfigInvalid:
		errorType = ValidationError
	case CodeAdapterNotRegistered, CodeScorerNotRegistered, CodeSinkNotRegistered:
		errorType = BadRequestError
	default:
		errorType = InternalError
	}

	return NewAppError(errorType, message, details, nil)
}
