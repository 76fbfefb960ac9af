package capture

// EventKind tells posted and removed observations apart on the stream.
type EventKind string

const (
	KindPosted  EventKind = "posted"
	KindRemoved EventKind = "removed"
)

// Extras keys the platform uses for notification text.
const (
	ExtraTitle   = "android.title"
	ExtraText    = "android.text"
	ExtraBigText = "android.bigText"
)

// StatusNotification is a notification as reported by the platform listener.
type StatusNotification struct {
	Key         string                 `json:"key,omitempty"`
	PackageName string                 `json:"packageName" binding:"required"`
	Extras      map[string]interface{} `json:"extras,omitempty"`
}

// NotificationEvent is the flat record delivered to the stream subscriber.
// Optional fields are nil when the notification did not carry them.
type NotificationEvent struct {
	Kind                EventKind `json:"kind"`
	SourceApplicationID string    `json:"packageName"`
	Title               *string   `json:"title"`
	BodyText            *string   `json:"text"`
	ExpandedText        *string   `json:"bigText"`
}

// NewNotificationEvent normalizes a platform notification.
func NewNotificationEvent(kind EventKind, n *StatusNotification) NotificationEvent {
	return NotificationEvent{
		Kind:                kind,
		SourceApplicationID: n.PackageName,
		Title:               extraString(n.Extras, ExtraTitle),
		BodyText:            extraString(n.Extras, ExtraText),
		ExpandedText:        extraString(n.Extras, ExtraBigText),
	}
}

// extraString returns the extra only when it holds a string.
func extraString(extras map[string]interface{}, key string) *string {
	v, ok := extras[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// State is the lifecycle state of the capture service.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateObserving
	StateIdle
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateObserving:
		return "observing"
	case StateIdle:
		return "idle"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

func (s State) active() bool {
	return s == StateReady || s == StateObserving || s == StateIdle
}
