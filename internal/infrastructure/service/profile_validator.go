package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ProfileValidator checks profile snapshots at the ingestion boundary using the
// struct tags on the profile value objects plus an MBTI pair-sum rule.
type ProfileValidator struct {
	v *validator.Validate
}

// NewProfileValidator creates a validator with the profile rules registered.
func NewProfileValidator() *ProfileValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validatePairSums, profile.MBTIPercentages{})
	return &ProfileValidator{v: v}
}

func validatePairSums(sl validator.StructLevel) {
	p, ok := sl.Current().Interface().(profile.MBTIPercentages)
	if !ok || p.PairSumsValid() {
		return
	}
	sl.ReportError(p, "PairSums", "PairSums", "pairsum", "100")
}

// Validate returns nil for a nil or valid profile, otherwise an error of kind
// shared.ErrValueOutOfRange listing the failing fields.
func (pv *ProfileValidator) Validate(p *profile.PersonalityProfile) error {
	if p == nil {
		return nil
	}
	return pv.wrap(pv.v.Struct(p))
}

// ValidateTeacher validates the profile and the load.
func (pv *ProfileValidator) ValidateTeacher(t *profile.Teacher) error {
	if t == nil {
		return nil
	}
	if t.CurrentLoad < 0 {
		return shared.WrapError("profile", "ValidateTeacher", shared.ErrValueOutOfRange,
			"teacher "+t.ID.String()+" reports negative load", shared.ErrNegativeTeacherLoad)
	}
	return pv.Validate(t.Personality)
}

func (pv *ProfileValidator) wrap(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError("profile", "Validate", shared.ErrValidation, "profile validation failed", err)
	}

	cause := error(shared.ErrProfileOutOfRange)
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
		if fe.StructField() == "Type" {
			cause = fmt.Errorf("%w: %w", shared.ErrProfileOutOfRange, shared.ErrInvalidMBTIType)
		}
	}
	return shared.WrapError("profile", "Validate", shared.ErrValueOutOfRange,
		"invalid fields: "+strings.Join(fields, ", "), cause)
}

// Sanitized is the result of applying the lenient policy to a snapshot.
type Sanitized struct {
	Profile     *profile.PersonalityProfile
	Adjustments []profile.Adjustment

	// Dropped lists sections that could not be repaired and are treated as
	// not measured.
	Dropped []string
}

// Changed reports whether the snapshot differs from the input.
func (s Sanitized) Changed() bool {
	return len(s.Adjustments) > 0 || len(s.Dropped) > 0
}

// Sanitize validates p. Valid profiles pass through unchanged. Invalid ones
// are rejected in strict mode and clamped otherwise.
func (pv *ProfileValidator) Sanitize(p *profile.PersonalityProfile, strict bool) (Sanitized, error) {
	err := pv.Validate(p)
	if err == nil {
		return Sanitized{Profile: p}, nil
	}
	if strict {
		return Sanitized{}, err
	}

	out, adj := p.Clamp()
	res := Sanitized{Profile: out, Adjustments: adj}

	if out.MBTI != nil {
		if pv.v.Var(out.MBTI.Type, "omitempty,len=4,alpha") != nil {
			out.MBTI.Type = ""
			res.Dropped = append(res.Dropped, "mbti.type")
		}
		// A pair of zeros cannot be renormalised.
		if !out.MBTI.Percentages.PairSumsValid() {
			out.MBTI = nil
			res.Dropped = append(res.Dropped, "mbti")
		}
	}
	return res, nil
}
