// Package session содержит доменную модель диалога расчёта балла.
// Сессия - это строго упорядоченная последовательность шагов одного
// пользователя: шаги нельзя пропускать и нельзя возвращаться назад,
// единственный путь "назад" - бросить сессию и начать заново.
// Сессии живут только в памяти процесса и никогда не сохраняются.
package session

import (
	"errors"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEPS
// ══════════════════════════════════════════════════════════════════════════════

// StepKind определяет тип вопроса, который задаётся на шаге.
type StepKind string

const (
	// StepPrimaryScore - основной экзаменационный балл (UTME).
	StepPrimaryScore StepKind = "primary_score"
	// StepSecondaryScore - дополнительный балл (Post-UTME / screening).
	StepSecondaryScore StepKind = "secondary_score"
	// StepCredentialList - список кодов оценок одной строкой через запятую.
	StepCredentialList StepKind = "credential_list"
	// StepSingleCredential - один код оценки за раз (предмет N).
	StepSingleCredential StepKind = "single_credential"
	// StepSittingCount - вопрос об одной экзаменационной попытке.
	StepSittingCount StepKind = "sitting_count"
)

// Step - один шаг диалога.
type Step struct {
	// Kind - тип вопроса.
	Kind StepKind

	// Index - порядковый номер предмета для StepSingleCredential (с 1).
	// Для остальных типов шагов равен нулю.
	Index int
}

// StepsFor строит последовательность шагов для метода расчёта.
// Форма последовательности полностью определяется методом.
func StepsFor(m scoring.Method) []Step {
	steps := []Step{{Kind: StepPrimaryScore}}

	if m.NeedsSecondary() {
		steps = append(steps, Step{Kind: StepSecondaryScore})
	}
	if m.CredentialListSize() > 0 {
		steps = append(steps, Step{Kind: StepCredentialList})
	}
	for i := 1; i <= m.SingleCredentialCount(); i++ {
		steps = append(steps, Step{Kind: StepSingleCredential, Index: i})
	}
	if m.NeedsSitting() {
		steps = append(steps, Step{Kind: StepSittingCount})
	}

	return steps
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// State определяет жизненный цикл сессии.
type State string

const (
	// StateActive - сессия идёт, бот ждёт ответа на текущий шаг.
	StateActive State = "active"
	// StateCompleted - все шаги отвечены, балл рассчитан и списан.
	StateCompleted State = "completed"
	// StateAbandoned - сессия брошена (перезапуск, тайм-аут или нехватка баллов).
	StateAbandoned State = "abandoned"
)

// IsTerminal возвращает true для конечных состояний.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidUserID - невалидный идентификатор пользователя.
	ErrInvalidUserID = errors.New("session: invalid user id")

	// ErrInvalidMethod - метод расчёта не распознан.
	ErrInvalidMethod = errors.New("session: invalid calculation method")

	// ErrNotActive - операция допустима только для активной сессии.
	ErrNotActive = errors.New("session: session is not active")

	// ErrAllStepsAnswered - все шаги уже отвечены, новых ответов не ждём.
	ErrAllStepsAnswered = errors.New("session: all steps already answered")

	// ErrStepsRemaining - завершить можно только полностью отвеченную сессию.
	ErrStepsRemaining = errors.New("session: steps remaining")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session - диалог одного пользователя по одному расчёту.
type Session struct {
	// UserID - Telegram-идентификатор владельца сессии.
	UserID int64

	// Institution - идентификатор вуза из каталога.
	// Пустая строка означает стандартный расчёт без привязки к вузу.
	Institution string

	// Method - метод расчёта, зафиксированный при создании.
	Method scoring.Method

	// Steps - полная последовательность шагов, построенная из метода.
	Steps []Step

	// Current - индекс шага, ответа на который ждём.
	Current int

	// Input - накопленные проверенные ответы.
	Input scoring.Input

	// State - текущее состояние жизненного цикла.
	State State

	// StartedAt - время создания сессии.
	StartedAt time.Time

	// LastActivityAt - время последнего принятого ответа.
	// Используется для вытеснения простаивающих сессий.
	LastActivityAt time.Time
}

// New создаёт активную сессию с первым шагом в ожидании.
func New(userID int64, institution string, method scoring.Method) (*Session, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	if !method.IsValid() {
		return nil, ErrInvalidMethod
	}

	now := time.Now().UTC()

	return &Session{
		UserID:         userID,
		Institution:    institution,
		Method:         method,
		Steps:          StepsFor(method),
		Current:        0,
		State:          StateActive,
		StartedAt:      now,
		LastActivityAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// CurrentStep возвращает шаг, ответа на который ждём.
// ok == false, если все шаги уже отвечены.
func (s *Session) CurrentStep() (Step, bool) {
	if s.Current >= len(s.Steps) {
		return Step{}, false
	}
	return s.Steps[s.Current], true
}

// Done возвращает true, когда отвечены все шаги.
func (s *Session) Done() bool {
	return s.Current >= len(s.Steps)
}

// Submit разбирает ответ на текущий шаг и продвигает сессию вперёд.
// При ошибке разбора сессия остаётся на том же шаге: вызывающая
// сторона повторяет тот же вопрос.
func (s *Session) Submit(raw string) error {
	if s.State != StateActive {
		return ErrNotActive
	}

	step, ok := s.CurrentStep()
	if !ok {
		return ErrAllStepsAnswered
	}

	switch step.Kind {
	case StepPrimaryScore:
		value, err := scoring.ParsePrimaryScore(raw)
		if err != nil {
			return err
		}
		s.Input.Primary = value

	case StepSecondaryScore:
		value, err := scoring.ParseSecondaryScore(raw)
		if err != nil {
			return err
		}
		s.Input.Secondary = value

	case StepCredentialList:
		codes, err := scoring.ParseGradeList(raw, s.Method.CredentialListSize())
		if err != nil {
			return err
		}
		s.Input.Grades = codes

	case StepSingleCredential:
		code, err := scoring.ParseGradeCode(raw)
		if err != nil {
			return err
		}
		s.Input.Grades = append(s.Input.Grades, code)

	case StepSittingCount:
		single, err := scoring.ParseSittingAnswer(raw)
		if err != nil {
			return err
		}
		s.Input.SingleSitting = single
	}

	s.Current++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Complete переводит полностью отвеченную сессию в конечное состояние.
func (s *Session) Complete() error {
	if s.State != StateActive {
		return ErrNotActive
	}
	if !s.Done() {
		return ErrStepsRemaining
	}
	s.State = StateCompleted
	return nil
}

// Abandon бросает сессию из любого незавершённого места.
func (s *Session) Abandon() error {
	if s.State != StateActive {
		return ErrNotActive
	}
	s.State = StateAbandoned
	return nil
}

// IdleFor возвращает, сколько времени сессия простаивает без ответов.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}
