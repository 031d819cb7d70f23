package chi

// API error codes returned in the error response body.
type errorCode string

const (
	codeBadRequest         errorCode = "bad_request"
	codeValidationFailed   errorCode = "validation_failed"
	codeNotAllowed         errorCode = "not_allowed"
	codeNoAllowance        errorCode = "no_allowance"
	codeBudgetExceeded     errorCode = "budget_exceeded"
	codeIdentityNotFound   errorCode = "identity_not_found"
	codeProviderError      errorCode = "provider_error"
	codeNotImplemented     errorCode = "not_implemented"
	codeStorageUnavailable errorCode = "storage_unavailable"
	codeInternalError      errorCode = "internal_error"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// eventRequest is the body of POST /api/v1/events.
type eventRequest struct {
	Identity    string  `json:"identity"`
	DisplayName string  `json:"display_name,omitempty"`
	Group       bool    `json:"group,omitempty"`
	Kind        string  `json:"kind"`
	Tokens      int64   `json:"tokens,omitempty"`
	Seconds     float64 `json:"seconds,omitempty"`
	Size        string  `json:"size,omitempty"`
}

// receiptResponse reports the billing outcome of one event. Remaining is
// omitted for unlimited budgets since +Inf has no JSON encoding.
type receiptResponse struct {
	Cost        float64  `json:"cost"`
	Remaining   *float64 `json:"remaining,omitempty"`
	Unlimited   bool     `json:"unlimited,omitempty"`
	GuestBilled bool     `json:"guest_billed,omitempty"`
	Duplicate   bool     `json:"duplicate,omitempty"`
}

type costsJSON struct {
	Day     float64 `json:"day"`
	Month   float64 `json:"month"`
	AllTime float64 `json:"all_time"`
}

type usageMetricsJSON struct {
	ChatTokens           int64   `json:"chat_tokens"`
	TranscriptionSeconds float64 `json:"transcription_seconds"`
	// Images counts generated images per size tier, smallest first.
	Images []int `json:"images"`
}

type budgetJSON struct {
	Allowance *float64 `json:"allowance,omitempty"`
	Spent     float64  `json:"spent"`
	Remaining *float64 `json:"remaining,omitempty"`
	Unlimited bool     `json:"unlimited"`
	Exhausted bool     `json:"exhausted"`
}

// usageResponse is the body of GET /api/v1/identities/{identity}/usage.
type usageResponse struct {
	Period      string           `json:"period"`
	Identity    string           `json:"identity"`
	DisplayName string           `json:"display_name,omitempty"`
	Costs       costsJSON        `json:"costs"`
	Today       usageMetricsJSON `json:"today"`
	Month       usageMetricsJSON `json:"month"`
	Budget      budgetJSON       `json:"budget"`
}

// budgetResponse is the body of GET /api/v1/identities/{identity}/budget.
type budgetResponse struct {
	Identity     string   `json:"identity"`
	Period       string   `json:"period"`
	Allowance    *float64 `json:"allowance,omitempty"`
	Spent        float64  `json:"spent"`
	Remaining    *float64 `json:"remaining,omitempty"`
	Unlimited    bool     `json:"unlimited"`
	WithinBudget bool     `json:"within_budget"`
}

type chatMessageJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRelayRequest is the body of POST /api/v1/relay/chat.
type chatRelayRequest struct {
	Identity    string            `json:"identity"`
	DisplayName string            `json:"display_name,omitempty"`
	Group       bool              `json:"group,omitempty"`
	Messages    []chatMessageJSON `json:"messages"`
}

type chatRelayResponse struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

type transcriptResponse struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// imageRelayRequest is the body of POST /api/v1/relay/images. An empty
// size falls back to the service default.
type imageRelayRequest struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Group       bool   `json:"group,omitempty"`
	Prompt      string `json:"prompt"`
	Size        string `json:"size,omitempty"`
}

type imageRelayResponse struct {
	URL string `json:"url"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
