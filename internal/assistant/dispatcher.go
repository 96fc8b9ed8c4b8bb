// Package assistant implements the Entry Dispatcher (C8): the glue that
// accepts a user utterance, runs the Keyword Router, calls either the
// Workflow Engine or the Orchestrator, and returns the final text (spec
// §4.8, §6 "Entry interface exposed by the core to its embedding
// environment").
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus/internal/history"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observe"
	"github.com/haasonsaas/nexus/internal/orchestrator"
	"github.com/haasonsaas/nexus/internal/router"
	"github.com/haasonsaas/nexus/internal/tooling"
	"github.com/haasonsaas/nexus/internal/workflow"
)

// fallbackText is the bounded canned reply returned when all recovery
// fails (spec §7 "User-visible fallback"). It never mentions internal
// failure kinds.
const fallbackText = "I'm having trouble answering that right now. Could you try again in a moment?"

// Routing errors (spec §7): an empty or oversized utterance is answered
// with a refusal string rather than a returned error. The length bound
// matches the 1 KiB ceiling the Keyword Router is specified against.
const (
	maxUtteranceBytes = 1024

	emptyUtteranceText    = "I didn't catch that. Could you say it again?"
	overlongUtteranceText = "That was a lot at once. Could you ask a shorter question?"
)

// Session holds one caller's per-session state: its History Manager and
// a cancellation function for any workflow currently running on its
// behalf. The core never shares a Session across goroutines concurrently
// (spec §5: "history belongs to one session and is not shared").
type Session struct {
	mu     sync.Mutex
	hist   *history.Manager
	cancel context.CancelFunc
}

// NewSession builds an empty per-caller Session.
func NewSession(histConfig history.Config) *Session {
	return &Session{hist: history.New(histConfig)}
}

// Dispatcher is the Entry Dispatcher (C8): it owns the Keyword Router,
// Workflow Engine, and Orchestrator factory, and routes each utterance to
// the right one (spec §4.8 "Algorithm").
type Dispatcher struct {
	router  *router.Router
	engine  *workflow.Engine
	orchCfg orchestrator.Config
	adaptor *llm.Adaptor
	tools   *tooling.Registry
	logger  *slog.Logger

	sessMu   sync.Mutex
	sessions map[string]*Session
}

// New builds a Dispatcher over a Router, a Workflow Engine, and the pieces
// needed to build one Orchestrator per session: the shared LLM Adaptor,
// the shared Tool Registry, and Orchestrator bounds.
func New(r *router.Router, engine *workflow.Engine, adaptor *llm.Adaptor, tools *tooling.Registry, orchCfg orchestrator.Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		router:   r,
		engine:   engine,
		orchCfg:  orchCfg,
		adaptor:  adaptor,
		tools:    tools,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// sessionFor returns the Session for handle, creating one on first use.
func (d *Dispatcher) sessionFor(handle string) *Session {
	d.sessMu.Lock()
	defer d.sessMu.Unlock()
	s, ok := d.sessions[handle]
	if !ok {
		s = NewSession(history.Config{})
		d.sessions[handle] = s
	}
	return s
}

// Dispatch accepts an utterance for sessionHandle, routes it, and returns
// the final text. Observation events (workflow runs only; the Orchestrator
// has no UI state diagram to drive, per spec §4.7) are emitted to
// observer, which may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, utterance, sessionHandle string, observer observe.Sink) (string, error) {
	if strings.TrimSpace(utterance) == "" {
		return emptyUtteranceText, nil
	}
	if len(utterance) > maxUtteranceBytes {
		return overlongUtteranceText, nil
	}

	if observer == nil {
		observer = observe.Noop
	}
	safeObserver := observe.Safe(observer, func(r any) {
		d.logger.Error("observer panicked", "recovered", r)
	})

	sess := d.sessionFor(sessionHandle)

	if workflowID, ok := d.router.Route(utterance); ok {
		sess.mu.Lock()
		runCtx, cancel := context.WithCancel(ctx)
		sess.cancel = cancel
		sess.mu.Unlock()
		defer func() {
			sess.mu.Lock()
			sess.cancel = nil
			sess.mu.Unlock()
		}()

		text, err := d.engine.Run(runCtx, workflowID, utterance, safeObserver)
		if err != nil {
			var cancelled workflow.CancelledErr
			if errors.As(err, &cancelled) {
				return "", err
			}
			d.logger.Warn("workflow run failed", "workflow_id", workflowID, "error", err)
			return fallbackText, nil
		}
		return text, nil
	}

	orch := orchestrator.New(d.adaptor, d.tools, sess.hist, d.orchCfg)
	result, err := orch.Chat(ctx, utterance, orchestrator.Callbacks{})
	if err != nil {
		d.logger.Warn("orchestrator chat failed", "error", err)
		return fallbackText, nil
	}
	return result.Text, nil
}

// Cancel propagates a cancellation signal into any workflow instance
// currently running for sessionHandle (spec §5 "Cancellation semantics").
// A no-op if the session doesn't exist or nothing is running.
func (d *Dispatcher) Cancel(sessionHandle string) {
	d.sessMu.Lock()
	sess, ok := d.sessions[sessionHandle]
	d.sessMu.Unlock()
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cancel != nil {
		sess.cancel()
	}
}
