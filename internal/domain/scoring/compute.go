package scoring

import (
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE FORMULAS
// Одна чистая формула на вариант методики. Вход уже проверен движком
// диалога; здесь только арифметика и правило округления.
// ══════════════════════════════════════════════════════════════════════════════

// Границы входных баллов и константы формул.
const (
	// PrimaryScoreMax - верхняя граница основного балла (JAMB/UTME).
	PrimaryScoreMax = 400

	// SecondaryScoreMax - верхняя граница второго балла (скрининг или Post-UTME).
	SecondaryScoreMax = 100

	// SingleSittingBonus - бонус за результаты, полученные за одну явку.
	SingleSittingBonus = 10

	// CredentialListLen - длина списка оценок для вариантов со списком.
	CredentialListLen = 5

	// ScreeningCredentialLen - число одиночных оценок для методики
	// institution_specific_screening.
	ScreeningCredentialLen = 4
)

// Таблицы весов оценок. Таблицы закрытые: код, отсутствующий в таблице,
// даёт вклад 0, а не ошибку. Таблица A строго выше таблицы B
// для каждого кода; таблица C - грубая шкала в десятках.
var (
	credentialWeightA = map[GradeCode]float64{
		GradeA1: 2.0, GradeB2: 1.8, GradeB3: 1.6,
		GradeC4: 1.4, GradeC5: 1.2, GradeC6: 1.0,
	}

	credentialWeightB = map[GradeCode]float64{
		GradeA1: 1.0, GradeB2: 0.9, GradeB3: 0.8,
		GradeC4: 0.7, GradeC5: 0.6, GradeC6: 0.5,
	}

	credentialWeightC = map[GradeCode]float64{
		GradeA1: 90, GradeB2: 80, GradeB3: 70,
		GradeC4: 60, GradeC5: 55, GradeC6: 50,
		GradeD7: 0, GradeE8: 0, GradeF9: 0,
		GradeAR: 0, GradeOutstanding: 0,
	}
)

// Input - проверенный набор входных данных для расчёта.
// Какие поля заполнены, определяется вариантом методики.
type Input struct {
	// Primary - основной балл, [0, 400].
	Primary float64

	// Secondary - второй балл, [0, 100].
	Secondary float64

	// Grades - собранные коды оценок аттестата.
	Grades []GradeCode

	// SingleSitting - результаты получены за одну явку.
	SingleSitting bool
}

// Compute считает итоговый балл по варианту методики.
// Результат округлён до двух знаков по правилу "к чётному".
// Неизвестный вариант считается по стандартной формуле.
func Compute(m Method, in Input) float64 {
	switch m {
	case MethodScoreAdmissionCredentials:
		return round2(scorePair(in.Primary, in.Secondary) + bestSum(credentialWeightA, in.Grades, CredentialListLen))
	case MethodCredentialsOnly:
		return round2(in.Primary/8 + bestSum(credentialWeightB, in.Grades, CredentialListLen))
	case MethodInstitutionScreening:
		bonus := 0.0
		if in.SingleSitting {
			bonus = SingleSittingBonus
		}
		return round2(in.Primary*0.7 + (tableSum(credentialWeightC, in.Grades)+bonus)*0.3)
	default:
		return round2(scorePair(in.Primary, in.Secondary))
	}
}

// scorePair - общая часть формул score_only и score_plus_admission_test.
func scorePair(primary, secondary float64) float64 {
	return primary/8 + secondary/2
}

// bestSum суммирует n наибольших весов из таблицы по переданным кодам.
// При ровно n кодах это обычная сумма; избыточный список усекается.
func bestSum(table map[GradeCode]float64, grades []GradeCode, n int) float64 {
	weights := make([]float64, 0, len(grades))
	for _, g := range grades {
		weights = append(weights, table[g])
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	if len(weights) > n {
		weights = weights[:n]
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return sum
}

// tableSum суммирует веса всех переданных кодов.
func tableSum(table map[GradeCode]float64, grades []GradeCode) float64 {
	var sum float64
	for _, g := range grades {
		sum += table[g]
	}
	return sum
}

// round2 округляет до двух знаков, ties-to-even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
