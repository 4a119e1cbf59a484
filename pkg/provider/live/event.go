package live

// Event is one inbound occurrence on a channel. The set of implementations is
// closed: [AudioEvent], [TranscriptEvent], [ToolCallEvent],
// [TurnCompleteEvent] and [InterruptedEvent].
type Event interface {
	isEvent()
}

// Role identifies the speaker of a transcript fragment.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AudioEvent carries one encoded chunk of model speech.
type AudioEvent struct {
	Data     []byte
	MIMEType string
}

// TranscriptEvent carries an incremental text fragment for one speaker.
type TranscriptEvent struct {
	Role Role
	Text string
}

// ToolCallEvent carries a batch of calls that arrived in one frame.
type ToolCallEvent struct {
	Calls []ToolCall
}

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

// InterruptedEvent reports that the user barged in and the model stopped
// generating; buffered output should be discarded.
type InterruptedEvent struct{}

func (AudioEvent) isEvent()        {}
func (TranscriptEvent) isEvent()   {}
func (ToolCallEvent) isEvent()     {}
func (TurnCompleteEvent) isEvent() {}
func (InterruptedEvent) isEvent()  {}
