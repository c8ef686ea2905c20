package scoring

// ══════════════════════════════════════════════════════════════════════════════
// METHOD VARIANT (value object)
// Вариант методики расчёта. Каждый вуз использует ровно один вариант;
// вариант определяет и последовательность шагов диалога, и формулу.
// ══════════════════════════════════════════════════════════════════════════════

// Method - вариант методики расчёта вступительного балла.
type Method string

// Закрытое множество вариантов методики.
const (
	// MethodScoreOnly - стандартный скрининг: JAMB + балл отборочного теста.
	MethodScoreOnly Method = "score_only"

	// MethodScorePlusAdmissionTest - JAMB + собственный вступительный
	// экзамен вуза (Post-UTME). Арифметика совпадает с MethodScoreOnly,
	// различаются смысл второго балла и формулировки вопросов.
	MethodScorePlusAdmissionTest Method = "score_plus_admission_test"

	// MethodScoreAdmissionCredentials - JAMB + Post-UTME + пять лучших
	// оценок аттестата по таблице весов A.
	MethodScoreAdmissionCredentials Method = "score_plus_admission_test_plus_credentials"

	// MethodCredentialsOnly - JAMB + пять лучших оценок аттестата по
	// таблице весов B, без вступительного экзамена.
	MethodCredentialsOnly Method = "credentials_only"

	// MethodInstitutionScreening - собственная схема вуза: JAMB с весом 0.7,
	// четыре оценки аттестата по таблице C и бонус за одну явку с весом 0.3.
	MethodInstitutionScreening Method = "institution_specific_screening"
)

// DefaultMethod - вариант по умолчанию для вузов вне реестра
// и для расчёта без выбора вуза.
const DefaultMethod = MethodScoreOnly

// validMethods - закрытое множество кодов методики.
var validMethods = map[Method]struct{}{
	MethodScoreOnly:                 {},
	MethodScorePlusAdmissionTest:    {},
	MethodScoreAdmissionCredentials: {},
	MethodCredentialsOnly:           {},
	MethodInstitutionScreening:      {},
}

// methodTitles - человекочитаемые названия для сообщений бота.
var methodTitles = map[Method]string{
	MethodScoreOnly:                 "Standard screening (UTME + screening score)",
	MethodScorePlusAdmissionTest:    "UTME + Post-UTME",
	MethodScoreAdmissionCredentials: "UTME + Post-UTME + O'Level",
	MethodCredentialsOnly:           "UTME + O'Level",
	MethodInstitutionScreening:      "Institution screening (weighted UTME + O'Level)",
}

// IsValid проверяет принадлежность закрытому множеству.
func (m Method) IsValid() bool {
	_, ok := validMethods[m]
	return ok
}

// String реализует fmt.Stringer.
func (m Method) String() string {
	return string(m)
}

// Title возвращает человекочитаемое название методики.
func (m Method) Title() string {
	if title, ok := methodTitles[m]; ok {
		return title
	}
	return string(m)
}

// ─────────────────────────────────────────────────────────────────────────────
// Форма последовательности шагов. По этим предикатам пакет session
// строит конкретный маршрут диалога для варианта.
// ─────────────────────────────────────────────────────────────────────────────

// NeedsSecondary сообщает, собирает ли вариант второй балл (0-100).
func (m Method) NeedsSecondary() bool {
	switch m {
	case MethodScoreOnly, MethodScorePlusAdmissionTest, MethodScoreAdmissionCredentials:
		return true
	}
	return false
}

// CredentialListSize возвращает длину списка оценок, вводимого одной
// строкой, или 0, если вариант не собирает список.
func (m Method) CredentialListSize() int {
	switch m {
	case MethodScoreAdmissionCredentials, MethodCredentialsOnly:
		return CredentialListLen
	}
	return 0
}

// SingleCredentialCount возвращает число оценок, вводимых по одной,
// или 0, если вариант не собирает одиночные оценки.
func (m Method) SingleCredentialCount() int {
	if m == MethodInstitutionScreening {
		return ScreeningCredentialLen
	}
	return 0
}

// NeedsSitting сообщает, спрашивает ли вариант про количество явок.
func (m Method) NeedsSitting() bool {
	return m == MethodInstitutionScreening
}
