// Package scoring содержит чистую расчётную логику вступительного балла.
// Это ядро бизнес-логики: никаких внешних зависимостей, никакого I/O,
// только проверенные входные данные и детерминированные формулы.
package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE CODE (value object)
// Код экзаменационной оценки O'Level (WAEC/NECO). Закрытое множество,
// ввод нечувствителен к регистру.
// ══════════════════════════════════════════════════════════════════════════════

// GradeCode - код оценки аттестата ("A1", "B2", ...).
type GradeCode string

// Допустимые коды оценок.
const (
	GradeA1          GradeCode = "A1"
	GradeB2          GradeCode = "B2"
	GradeB3          GradeCode = "B3"
	GradeC4          GradeCode = "C4"
	GradeC5          GradeCode = "C5"
	GradeC6          GradeCode = "C6"
	GradeD7          GradeCode = "D7"
	GradeE8          GradeCode = "E8"
	GradeF9          GradeCode = "F9"
	GradeAR          GradeCode = "AR"
	GradeOutstanding GradeCode = "OUTSTANDING"
)

// Ошибки разбора оценок.
var (
	// ErrUnknownGradeCode - код не входит в закрытое множество.
	ErrUnknownGradeCode = errors.New("scoring: unknown grade code")

	// ErrGradeCountMismatch - список содержит не то количество кодов.
	ErrGradeCountMismatch = errors.New("scoring: wrong number of grade codes")
)

// validGrades - закрытое множество допустимых кодов.
var validGrades = map[GradeCode]struct{}{
	GradeA1: {}, GradeB2: {}, GradeB3: {},
	GradeC4: {}, GradeC5: {}, GradeC6: {},
	GradeD7: {}, GradeE8: {}, GradeF9: {},
	GradeAR: {}, GradeOutstanding: {},
}

// AllGradeCodes возвращает коды в порядке убывания оценки.
// Используется презентером для подсказок в сообщениях.
func AllGradeCodes() []GradeCode {
	return []GradeCode{
		GradeA1, GradeB2, GradeB3,
		GradeC4, GradeC5, GradeC6,
		GradeD7, GradeE8, GradeF9,
		GradeAR, GradeOutstanding,
	}
}

// ParseGradeCode нормализует пользовательский ввод (пробелы, регистр)
// и проверяет принадлежность закрытому множеству.
func ParseGradeCode(raw string) (GradeCode, error) {
	code := GradeCode(strings.ToUpper(strings.TrimSpace(raw)))
	if !code.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownGradeCode, raw)
	}
	return code, nil
}

// ParseGradeList разбирает строку вида "A1, B2, B3, C4, C5".
// Требует ровно want кодов; любой нераспознанный код - ошибка.
func ParseGradeList(raw string, want int) ([]GradeCode, error) {
	parts := strings.Split(raw, ",")
	codes := make([]GradeCode, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		code, err := ParseGradeCode(part)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if len(codes) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrGradeCountMismatch, len(codes), want)
	}
	return codes, nil
}

// IsValid проверяет принадлежность закрытому множеству.
func (g GradeCode) IsValid() bool {
	_, ok := validGrades[g]
	return ok
}

// String реализует fmt.Stringer.
func (g GradeCode) String() string {
	return string(g)
}
