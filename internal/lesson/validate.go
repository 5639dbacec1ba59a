package lesson

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidContent means a step's payload lacks fields required by its type.
var ErrInvalidContent = errors.New("invalid step content")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that a step's payload carries every field its type requires.
func Validate(s Step) error {
	var target any
	switch {
	case s.Type.TextLike():
		if s.Text != nil {
			target = s.Text
		}
	case s.Type.Media():
		if s.Media != nil {
			target = s.Media
		}
	case s.Type == StepExercise:
		if s.Exercise != nil {
			target = s.Exercise
		}
	case s.Type == StepSpeech:
		if s.Speech != nil {
			target = s.Speech
		}
	default:
		return fmt.Errorf("%w: step %s has unknown type %q", ErrInvalidContent, s.ID, s.Type)
	}
	if target == nil {
		return fmt.Errorf("%w: step %s has no %s content", ErrInvalidContent, s.ID, s.Type)
	}

	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: step %s: %s", ErrInvalidContent, s.ID, describe(err))
	}

	if ex := s.Exercise; ex != nil && ex.Kind == KindMultipleChoice {
		if len(ex.Options) < 2 {
			return fmt.Errorf("%w: step %s: multiple-choice needs at least 2 options", ErrInvalidContent, s.ID)
		}
		if !slices.Contains(ex.Options, ex.ExpectedAnswer) {
			return fmt.Errorf("%w: step %s: expected answer is not one of the options", ErrInvalidContent, s.ID)
		}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
