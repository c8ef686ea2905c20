package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
	"github.com/admit-hub/admission-calc-bot/internal/domain/session"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME
// Every engine call returns an Outcome describing what to tell the user.
// The engine never renders text: presentation stays in interface/telegram.
// ══════════════════════════════════════════════════════════════════════════════

// OutcomeKind discriminates engine outcomes.
type OutcomeKind string

const (
	// OutcomePrompt - ask the question for the session's current step.
	OutcomePrompt OutcomeKind = "prompt"

	// OutcomeReprompt - the answer was rejected, ask the same step again.
	OutcomeReprompt OutcomeKind = "reprompt"

	// OutcomeCompleted - all steps answered, score computed and paid for.
	OutcomeCompleted OutcomeKind = "completed"

	// OutcomeInsufficientPoints - the balance does not cover a calculation.
	OutcomeInsufficientPoints OutcomeKind = "insufficient_points"

	// OutcomeNoSession - free text arrived while no dialog was running.
	OutcomeNoSession OutcomeKind = "no_session"
)

// Outcome is the engine's answer to one user event.
type Outcome struct {
	// Kind tells the presenter which message family to render.
	Kind OutcomeKind

	// UserID is the owner of the dialog.
	UserID int64

	// Method is the calculation method of the running dialog.
	Method scoring.Method

	// InstitutionName is the display name of the chosen institution,
	// empty for the standard flow.
	InstitutionName string

	// Step is the step to prompt for (prompt and reprompt outcomes).
	Step session.Step

	// StepNumber and StepTotal position the step for progress display,
	// 1-based.
	StepNumber int
	StepTotal  int

	// Err is the validation error behind a reprompt.
	Err error

	// Score is the computed admission score (completed outcomes).
	Score float64

	// Balance is the points balance after the event: the remaining
	// balance on completion, the current one when it was insufficient.
	Balance ledger.Points
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCalculationCost is charged per completed calculation unless
// configured otherwise.
const DefaultCalculationCost ledger.Points = 1

// Engine drives calculation dialogs: it owns session transitions and the
// completion sequence (balance gate, compute, debit, teardown).
type Engine struct {
	store    *Store
	registry *university.Registry
	points   ledger.Ledger
	cost     ledger.Points
}

// NewEngine creates a dialog engine. cost is the points price of one
// completed calculation.
func NewEngine(store *Store, registry *university.Registry, points ledger.Ledger, cost ledger.Points) *Engine {
	if cost <= 0 {
		cost = DefaultCalculationCost
	}

	return &Engine{
		store:    store,
		registry: registry,
		points:   points,
		cost:     cost,
	}
}

// StartStandard begins the standard calculation dialog, not tied to any
// institution. An already running dialog is abandoned and replaced.
func (e *Engine) StartStandard(ctx context.Context, userID int64) (*Outcome, error) {
	return e.start(ctx, userID, "", "", scoring.DefaultMethod)
}

// StartForInstitution begins a dialog using the institution's published
// method. Unknown institution ids fall back to the standard flow.
func (e *Engine) StartForInstitution(ctx context.Context, userID int64, rawID string) (*Outcome, error) {
	uni, ok := e.registry.Get(university.ParseID(rawID))
	if !ok {
		return e.start(ctx, userID, "", "", scoring.DefaultMethod)
	}
	return e.start(ctx, userID, string(uni.ID), uni.Name, uni.Method)
}

// HandleText applies free text to the user's dialog. Sitting buttons land
// here too, as their yes/no payload.
func (e *Engine) HandleText(ctx context.Context, userID int64, text string) (*Outcome, error) {
	var (
		out   *Outcome
		opErr error
	)

	e.store.Update(userID, func(current *session.Session) *session.Session {
		if current == nil {
			out = &Outcome{Kind: OutcomeNoSession, UserID: userID}
			return nil
		}

		if err := current.Submit(text); err != nil {
			out = e.stepOutcome(OutcomeReprompt, current, err)
			return current
		}

		if !current.Done() {
			out = e.stepOutcome(OutcomePrompt, current, nil)
			return current
		}

		// Terminal step answered: the session ends now one way or another.
		out, opErr = e.finish(ctx, current)
		return nil
	})

	return out, opErr
}

// Reset abandons the user's dialog if one is running.
// Returns true when there was something to abandon.
func (e *Engine) Reset(userID int64) bool {
	var had bool
	e.store.Update(userID, func(current *session.Session) *session.Session {
		if current != nil {
			_ = current.Abandon()
			had = true
		}
		return nil
	})
	return had
}

// ActiveSessions returns the number of running dialogs.
func (e *Engine) ActiveSessions() int {
	return e.store.ActiveCount()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

func (e *Engine) start(ctx context.Context, userID int64, instID, instName string, method scoring.Method) (*Outcome, error) {
	balance, err := e.balanceOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < e.cost {
		return &Outcome{Kind: OutcomeInsufficientPoints, UserID: userID, Balance: balance}, nil
	}

	sess, err := session.New(userID, instID, method)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to start session: %w", err)
	}

	e.store.Update(userID, func(current *session.Session) *session.Session {
		if current != nil {
			_ = current.Abandon()
		}
		return sess
	})

	return e.stepOutcome(OutcomePrompt, sess, nil), nil
}

// finish runs the completion sequence for a fully answered session:
// balance gate first, then compute, then debit. The debit happens only
// after the gate passed, and nothing is charged when the gate fails.
func (e *Engine) finish(ctx context.Context, sess *session.Session) (*Outcome, error) {
	balance, err := e.balanceOf(ctx, sess.UserID)
	if err != nil {
		_ = sess.Abandon()
		return nil, err
	}
	if balance < e.cost {
		_ = sess.Abandon()
		return &Outcome{Kind: OutcomeInsufficientPoints, UserID: sess.UserID, Balance: balance}, nil
	}

	score := scoring.Compute(sess.Method, sess.Input)

	tx, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:     uuid.NewString(),
		UserID: ledger.UserID(sess.UserID),
		Delta:  -e.cost,
		Reason: ledger.CalculationReason(sess.Institution, string(sess.Method)),
	})
	if err != nil {
		_ = sess.Abandon()
		return nil, fmt.Errorf("conversation: failed to build debit: %w", err)
	}

	newBalance, err := e.points.Apply(ctx, tx)
	if err != nil {
		_ = sess.Abandon()
		return nil, fmt.Errorf("conversation: failed to debit calculation: %w", err)
	}

	_ = sess.Complete()

	return &Outcome{
		Kind:            OutcomeCompleted,
		UserID:          sess.UserID,
		Method:          sess.Method,
		InstitutionName: e.institutionName(sess),
		Score:           score,
		Balance:         newBalance,
	}, nil
}

func (e *Engine) stepOutcome(kind OutcomeKind, sess *session.Session, stepErr error) *Outcome {
	step, _ := sess.CurrentStep()

	return &Outcome{
		Kind:            kind,
		UserID:          sess.UserID,
		Method:          sess.Method,
		InstitutionName: e.institutionName(sess),
		Step:            step,
		StepNumber:      sess.Current + 1,
		StepTotal:       len(sess.Steps),
		Err:             stepErr,
	}
}

func (e *Engine) institutionName(sess *session.Session) string {
	if sess.Institution == "" {
		return ""
	}
	if uni, ok := e.registry.Get(university.ID(sess.Institution)); ok {
		return uni.Name
	}
	return sess.Institution
}

// balanceOf treats a missing balance row as zero: the user will be turned
// away with the insufficient-points message rather than an error.
func (e *Engine) balanceOf(ctx context.Context, userID int64) (ledger.Points, error) {
	balance, err := e.points.Balance(ctx, ledger.UserID(userID))
	if err != nil {
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("conversation: failed to read balance: %w", err)
	}
	return balance, nil
}
