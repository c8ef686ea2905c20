package scoring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// INPUT PARSING
// Разбор свободного текста от пользователя. Каждая функция принимает сырую
// строку и возвращает либо проверенное значение, либо ошибку для повторного
// запроса того же шага.
// ══════════════════════════════════════════════════════════════════════════════

// Ошибки разбора пользовательского ввода.
var (
	// ErrScoreNotANumber - ввод не является числом.
	ErrScoreNotANumber = errors.New("scoring: score is not a number")

	// ErrScoreOutOfRange - число вне допустимого диапазона.
	ErrScoreOutOfRange = errors.New("scoring: score out of range")

	// ErrUnknownSittingAnswer - ответ про количество попыток не распознан.
	ErrUnknownSittingAnswer = errors.New("scoring: unknown sitting answer")
)

// ParsePrimaryScore разбирает основной балл (UTME), диапазон [0, PrimaryScoreMax].
func ParsePrimaryScore(raw string) (float64, error) {
	return parseScore(raw, PrimaryScoreMax)
}

// ParseSecondaryScore разбирает дополнительный балл (Post-UTME),
// диапазон [0, SecondaryScoreMax].
func ParseSecondaryScore(raw string) (float64, error) {
	return parseScore(raw, SecondaryScoreMax)
}

func parseScore(raw string, max float64) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrScoreNotANumber, raw)
	}
	if value < 0 || value > max {
		return 0, fmt.Errorf("%w: %v (allowed 0-%v)", ErrScoreOutOfRange, value, max)
	}
	return value, nil
}

// ParseSittingAnswer разбирает ответ на вопрос об одной экзаменационной
// попытке. Принимает yes/no и one/two (количество попыток).
// true означает одну попытку, то есть право на бонус.
func ParseSittingAnswer(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "one", "1":
		return true, nil
	case "no", "n", "two", "2":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownSittingAnswer, raw)
	}
}
