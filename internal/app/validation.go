package app

import (
	"errors"

	"github.com/Abdillah-Ali/biz-compas/internal/domain"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	minPasswordLength = 6
	// bcrypt only accepts secrets up to 72 bytes.
	maxPasswordBytes = 72
)

var signupFieldOrder = []string{"name", "email", "password"}

func validateSignup(req domain.SignupRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Name,
			validation.Required.Error("Name is required"),
		),
		validation.Field(&req.Email,
			validation.Required.Error("Please include a valid email"),
			is.Email.Error("Please include a valid email"),
		),
		validation.Field(&req.Password,
			validation.Required.Error("Please enter a password with 6 or more characters"),
			validation.Length(minPasswordLength, 0).Error("Please enter a password with 6 or more characters"),
			validation.Length(0, maxPasswordBytes).Error("Please enter a password of at most 72 characters"),
		),
	)
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{}
	for _, field := range signupFieldOrder {
		if fieldErr, ok := fieldErrs[field]; ok && fieldErr != nil {
			out.Fields = append(out.Fields, FieldError{Field: field, Msg: fieldErr.Error()})
		}
	}
	return out
}
