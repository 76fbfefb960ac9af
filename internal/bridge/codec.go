package bridge

import (
	"encoding/json"
	"fmt"
)

// MethodCall is a single request addressed to a method channel.
type MethodCall struct {
	// Method is the operation name, e.g. "checkPermission".
	Method string `json:"method"`

	// Arguments is the raw JSON payload, left undecoded until a handler needs it.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// DecodeArguments unmarshals the call arguments into v.
// A call without arguments leaves v untouched.
func (c MethodCall) DecodeArguments(v interface{}) error {
	if len(c.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Arguments, v); err != nil {
		return fmt.Errorf("decode arguments for %s: %w", c.Method, err)
	}
	return nil
}

// ReplyStatus distinguishes the three ways a method call can end.
type ReplyStatus string

const (
	StatusOK             ReplyStatus = "ok"
	StatusError          ReplyStatus = "error"
	StatusNotImplemented ReplyStatus = "not_implemented"
)

// Reply is the envelope written back to the caller of a method channel.
type Reply struct {
	Status ReplyStatus  `json:"status"`
	Result interface{}  `json:"result"`
	Error  *MethodError `json:"error,omitempty"`
}

// Method error codes shared by the bridge handlers.
const (
	CodeUnavailable         = "UNAVAILABLE"
	CodeScanFailed          = "SCAN_FAILED"
	CodeScanInProgress      = "SCAN_IN_PROGRESS"
	CodeSettingsUnavailable = "SETTINGS_UNAVAILABLE"
	CodeBadArguments        = "BAD_ARGUMENTS"
	CodePanic               = "PANIC"
)

// MethodError is a typed failure delivered through a Result.
type MethodError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *MethodError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
