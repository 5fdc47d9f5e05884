package protocol

// NoSeq marks an envelope that carries no job sequence number, such as a
// broadcast or a unit-level fault report.
const NoSeq int64 = -1

const (
	// TypeError tags an envelope reporting a failed job.
	TypeError = "ERROR"
	// TypeClose tags the terminal shutdown notice; a unit must not expect
	// further dispatch after receiving it.
	TypeClose = "CLOSE"
)

// TransferHint marks a payload resource that should be moved rather than
// copied across the execution boundary. A transferring send revokes the
// submitter's access to the resource outright.
type TransferHint struct {
	Resource interface{}
}

// Message is the application-level envelope exchanged between the
// coordinator and an execution unit. Job and result envelopes carry no type
// tag; error and shutdown envelopes are distinguished by Type. The payload
// is opaque to the coordinator.
type Message struct {
	Seq      int64          `json:"seq"`
	Type     string         `json:"type,omitempty"`
	Payload  interface{}    `json:"payload,omitempty"`
	Error    string         `json:"message,omitempty"`
	Transfer []TransferHint `json:"-"`
}

// NewJob creates a job envelope with a caller-assigned sequence number,
// unique within a submission wave.
func NewJob(seq int64, payload interface{}, hints ...TransferHint) *Message {
	return &Message{Seq: seq, Payload: payload, Transfer: hints}
}

// NewResult creates a result envelope; seq is copied verbatim from the
// originating job.
func NewResult(seq int64, payload interface{}) *Message {
	return &Message{Seq: seq, Payload: payload}
}

// NewError creates an error envelope for the given job.
func NewError(seq int64, err error) *Message {
	text := ""
	if err != nil {
		text = err.Error()
	}
	return &Message{Seq: seq, Type: TypeError, Error: text}
}

// NewClose creates the terminal shutdown notice.
func NewClose() *Message {
	return &Message{Seq: NoSeq, Type: TypeClose, Payload: map[string]interface{}{}}
}

// NewBroadcast creates an out-of-band envelope addressed to every unit;
// broadcasts never count against the admission bound.
func NewBroadcast(payload interface{}) *Message {
	return &Message{Seq: NoSeq, Payload: payload}
}

// IsError reports whether the envelope carries a job failure.
func (m *Message) IsError() bool {
	return m.Type == TypeError
}

// IsClose reports whether the envelope is the terminal shutdown notice.
func (m *Message) IsClose() bool {
	return m.Type == TypeClose
}

// IsBroadcast reports whether the envelope is an out-of-band broadcast.
func (m *Message) IsBroadcast() bool {
	return m.Type == "" && m.Seq == NoSeq
}

// HasSeq reports whether the envelope is tied to a job sequence number.
func (m *Message) HasSeq() bool {
	return m.Seq != NoSeq
}
