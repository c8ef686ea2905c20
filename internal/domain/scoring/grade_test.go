package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGradeCode(t *testing.T) {
	code, err := ParseGradeCode("a1")
	assert.NoError(t, err)
	assert.Equal(t, GradeA1, code)

	code, err = ParseGradeCode("  b2 ")
	assert.NoError(t, err)
	assert.Equal(t, GradeB2, code)

	code, err = ParseGradeCode("outstanding")
	assert.NoError(t, err)
	assert.Equal(t, GradeOutstanding, code)
}

func TestParseGradeCodeRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "A", "A2", "ZZ", "11", "A1B2"} {
		_, err := ParseGradeCode(raw)
		assert.ErrorIs(t, err, ErrUnknownGradeCode, "raw=%q", raw)
	}
}

func TestParseGradeList(t *testing.T) {
	codes, err := ParseGradeList("A1, b2,B3 , c4,C5", 5)
	assert.NoError(t, err)
	assert.Equal(t, []GradeCode{GradeA1, GradeB2, GradeB3, GradeC4, GradeC5}, codes)
}

func TestParseGradeListCountMismatch(t *testing.T) {
	_, err := ParseGradeList("A1,B2,B3", 5)
	assert.ErrorIs(t, err, ErrGradeCountMismatch)

	_, err = ParseGradeList("A1,B2,B3,C4,C5,C6", 5)
	assert.ErrorIs(t, err, ErrGradeCountMismatch)

	// Пустые сегменты не считаются кодами.
	_, err = ParseGradeList("A1,,B2,", 4)
	assert.ErrorIs(t, err, ErrGradeCountMismatch)
}

func TestParseGradeListRejectsInvalidCode(t *testing.T) {
	_, err := ParseGradeList("A1,B2,XX,C4,C5", 5)
	assert.ErrorIs(t, err, ErrUnknownGradeCode)
}

func TestAllGradeCodesAreValid(t *testing.T) {
	codes := AllGradeCodes()
	assert.Len(t, codes, len(validGrades))
	for _, code := range codes {
		assert.True(t, code.IsValid(), "code %s", code)
	}
}

func TestMethodIsValid(t *testing.T) {
	for _, m := range []Method{
		MethodScoreOnly,
		MethodScorePlusAdmissionTest,
		MethodScoreAdmissionCredentials,
		MethodCredentialsOnly,
		MethodInstitutionScreening,
	} {
		assert.True(t, m.IsValid(), "method %s", m)
		assert.NotEmpty(t, m.Title())
	}

	assert.False(t, Method("post_jamb").IsValid())
	assert.True(t, DefaultMethod.IsValid())
}

func TestMethodStepShape(t *testing.T) {
	assert.True(t, MethodScoreOnly.NeedsSecondary())
	assert.Zero(t, MethodScoreOnly.CredentialListSize())
	assert.Zero(t, MethodScoreOnly.SingleCredentialCount())
	assert.False(t, MethodScoreOnly.NeedsSitting())

	assert.True(t, MethodScoreAdmissionCredentials.NeedsSecondary())
	assert.Equal(t, 5, MethodScoreAdmissionCredentials.CredentialListSize())

	assert.False(t, MethodCredentialsOnly.NeedsSecondary())
	assert.Equal(t, 5, MethodCredentialsOnly.CredentialListSize())

	assert.False(t, MethodInstitutionScreening.NeedsSecondary())
	assert.Equal(t, 4, MethodInstitutionScreening.SingleCredentialCount())
	assert.True(t, MethodInstitutionScreening.NeedsSitting())
}
