// Package observe implements the Observation Protocol (C7): a structured
// event stream describing workflow start, state changes, loop iteration
// updates, per-step telemetry, narrations, and exit, delivered
// synchronously and in strict order to an observer callback.
package observe

// Kind tags an Event's variant, each carrying type-specific fields (spec
// §4.7).
type Kind string

const (
	KindWorkflowStart Kind = "workflow_start"
	KindNarration     Kind = "workflow_narration"
	KindState         Kind = "workflow_state"
	KindActivity      Kind = "workflow_activity"
	KindDebug         Kind = "workflow_debug"
	KindLoopUpdate    Kind = "workflow_loop_update"
	KindExit          Kind = "workflow_exit"
)

// StateStatus is the status carried by a workflow_state event.
type StateStatus string

const (
	StatusActive  StateStatus = "active"
	StatusVisited StateStatus = "visited"
	StatusError   StateStatus = "error"
)

// ExitReason is the reason carried by the terminal workflow_exit event.
type ExitReason string

const (
	ExitComplete   ExitReason = "complete"
	ExitCancelled  ExitReason = "cancelled"
	ExitError      ExitReason = "error"
)

// StateDescriptor describes one step for the workflow_start event's states
// list, enough for a UI to render a static state diagram up front.
type StateDescriptor struct {
	StateID      string
	Type         string // "llm" | "loop" | "synthesize"
	HasTool      bool
	ToolName     string
	Narration    string
	NextStepID   string
}

// Event is one tagged record in the observation stream. Only the fields
// relevant to Kind are populated; the rest are zero-valued.
type Event struct {
	Kind Kind

	// workflow_start
	WorkflowID  string
	Name        string
	Description string
	States      []StateDescriptor

	// workflow_narration
	Text string

	// workflow_state
	StateID   string
	Status    StateStatus
	StepIndex int
	TotalSteps int
	StepName  string
	Detail    string

	// workflow_activity
	Activity    string
	TimeoutSecs int

	// workflow_debug
	Step         string
	Model        string
	EvalTokens   int
	TokPerSec    float64
	RawChars     int
	PromptTokens int
	TotalMs      int64
	ThinkTokens  int
	ThinkDetected string

	// workflow_loop_update
	LoopStateID string
	Children    []string
	ActiveIndex int

	// workflow_exit
	Reason ExitReason
	Error  string
}

// Sink is the observer interface consumed by the Workflow Engine and
// Orchestrator: a single callable receiving each Event synchronously from
// the interpreter's execution context. A slow Sink directly backpressures
// the producer (spec §4.7, §5) by design — the emitter never buffers and
// never drops events.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

// Emit calls f(event).
func (f SinkFunc) Emit(event Event) { f(event) }

// Noop is a Sink that discards every event, used where an observer is
// optional (e.g. the Orchestrator's simple path has no UI state diagram
// to drive).
var Noop Sink = SinkFunc(func(Event) {})

// safeSink wraps a Sink so that a panicking observer is logged and
// swallowed rather than unwinding into the interpreter (spec §4.7
// "Delivery model": "If the callback raises, the error is logged and the
// event is considered delivered; the workflow continues").
type safeSink struct {
	inner  Sink
	onPanic func(recovered any)
}

// Safe wraps sink so that a panic from Emit is recovered, reported via
// onPanic (nil is allowed — the panic is then merely swallowed), and
// never propagates to the caller.
func Safe(sink Sink, onPanic func(recovered any)) Sink {
	if sink == nil {
		sink = Noop
	}
	return &safeSink{inner: sink, onPanic: onPanic}
}

func (s *safeSink) Emit(event Event) {
	defer func() {
		if r := recover(); r != nil && s.onPanic != nil {
			s.onPanic(r)
		}
	}()
	s.inner.Emit(event)
}
