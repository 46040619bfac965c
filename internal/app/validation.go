package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"proctor-quiz-service/internal/domain"
)

// newValidator builds the struct validator used for quiz definitions.
// Field paths are reported with JSON names, e.g. "pages[0].questions[1].text".
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// toValidationErrors converts validator output into domain field errors.
func toValidationErrors(err error) domain.ValidationErrors {
	var out domain.ValidationErrors
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		out.Add("", err.Error())
		return out
	}
	for _, fe := range fieldErrs {
		out.Add(fieldPath(fe.Namespace()), fieldMessage(fe))
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s item(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed rule " + fe.Tag()
}

// validateQuestion holds the rules that depend on the question type.
func validateQuestion(errs *domain.ValidationErrors, path string, q domain.Question) {
	switch q.Type {
	case domain.SingleChoice, domain.MultiChoice:
		blank := false
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				blank = true
				break
			}
		}
		switch {
		case blank:
			errs.Add(path+".options", "must all have text")
		case len(q.Options) < 2:
			errs.Add(path+".options", "must have at least 2 items")
		case q.CorrectAnswer.IsEmpty() && q.Type == domain.MultiChoice:
			errs.Add(path+".correctAnswer", "must select at least one option")
		case !q.Compatible(q.CorrectAnswer) || q.CorrectAnswer.IsEmpty():
			errs.Add(path+".correctAnswer", "must reference an existing option")
		}
	case domain.ShortAnswer:
		if text, _ := q.CorrectAnswer.Text(); strings.TrimSpace(text) == "" {
			errs.Add(path+".correctAnswer", "is required")
		}
	}
}
