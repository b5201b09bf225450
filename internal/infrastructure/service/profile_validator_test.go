package service

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

func TestProfileValidator_Validate(t *testing.T) {
	pv := NewProfileValidator()

	tests := []struct {
		name    string
		profile *profile.PersonalityProfile
		wantErr bool
	}{
		{name: "nil profile", profile: nil},
		{name: "empty profile", profile: &profile.PersonalityProfile{}},
		{name: "valid mbti", profile: &profile.PersonalityProfile{MBTI: validMBTI()}},
		{
			name: "pair sum off",
			profile: &profile.PersonalityProfile{MBTI: &profile.MBTIProfile{
				Percentages: profile.MBTIPercentages{E: 60, I: 60, S: 50, N: 50, T: 50, F: 50, J: 50, P: 50},
			}},
			wantErr: true,
		},
		{
			name:    "bad type",
			profile: &profile.PersonalityProfile{MBTI: &profile.MBTIProfile{Type: "EN7J", Percentages: validMBTI().Percentages}},
			wantErr: true,
		},
		{
			name:    "negative element",
			profile: &profile.PersonalityProfile{FiveElements: &profile.FiveElements{Metal: -0.5}},
			wantErr: true,
		},
		{
			name:    "NaN element",
			profile: &profile.PersonalityProfile{FiveElements: &profile.FiveElements{Water: math.NaN()}},
			wantErr: true,
		},
		{
			name:    "negative grid",
			profile: &profile.PersonalityProfile{NameGrids: &profile.NameGrids{Won: 3, Hyung: -1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pv.Validate(tt.profile)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrProfileOutOfRange)
			assert.Equal(t, tt.name == "bad type", errors.Is(err, shared.ErrInvalidMBTIType))
		})
	}
}

func TestProfileValidator_SanitizeLenient(t *testing.T) {
	pv := NewProfileValidator()

	in := &profile.PersonalityProfile{
		MBTI: &profile.MBTIProfile{
			Type:        "XXXXX",
			Percentages: profile.MBTIPercentages{E: 120, I: 0, S: 30, N: 90, T: 50, F: 50, J: 50, P: 50},
		},
	}

	res, err := pv.Sanitize(in, false)
	require.NoError(t, err)
	require.NotNil(t, res.Profile.MBTI)

	p := res.Profile.MBTI.Percentages
	assert.Equal(t, 100.0, p.E)
	assert.Equal(t, 0.0, p.I)
	assert.InDelta(t, 25.0, p.S, 1e-9)
	assert.InDelta(t, 75.0, p.N, 1e-9)
	assert.True(t, p.PairSumsValid())
	assert.Empty(t, res.Profile.MBTI.Type)
	assert.Contains(t, res.Dropped, "mbti.type")
	assert.NotEmpty(t, res.Adjustments)
	assert.Equal(t, "XXXXX", in.MBTI.Type)
}

func TestProfileValidator_SanitizeDropsUnrepairableMBTI(t *testing.T) {
	pv := NewProfileValidator()

	in := &profile.PersonalityProfile{
		MBTI:      &profile.MBTIProfile{Percentages: profile.MBTIPercentages{S: 50, N: 50, T: 50, F: 50, J: 50, P: 50}},
		NameGrids: &profile.NameGrids{Won: 11, Hyung: 15, Yi: 23, Jeong: 31},
	}

	res, err := pv.Sanitize(in, false)
	require.NoError(t, err)
	assert.Nil(t, res.Profile.MBTI)
	assert.Equal(t, in.NameGrids, res.Profile.NameGrids)
	assert.Equal(t, []string{"mbti"}, res.Dropped)
}

func TestProfileValidator_SanitizeStrict(t *testing.T) {
	pv := NewProfileValidator()

	valid := &profile.PersonalityProfile{MBTI: validMBTI()}
	res, err := pv.Sanitize(valid, true)
	require.NoError(t, err)
	assert.Same(t, valid, res.Profile)
	assert.False(t, res.Changed())

	_, err = pv.Sanitize(&profile.PersonalityProfile{FiveElements: &profile.FiveElements{Fire: -2}}, true)
	assert.ErrorIs(t, err, shared.ErrProfileOutOfRange)
}

func TestProfileValidator_ValidateTeacher(t *testing.T) {
	pv := NewProfileValidator()

	assert.NoError(t, pv.ValidateTeacher(&profile.Teacher{ID: "t", CurrentLoad: 0}))
	assert.ErrorIs(t, pv.ValidateTeacher(&profile.Teacher{ID: "t", CurrentLoad: -1}), shared.ErrNegativeTeacherLoad)
}
