package main

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"grievance/libs/backend"

	"github.com/go-playground/validator/v10"
)

const complaintCountry = "India"

var (
	indianPhoneRegex = regexp.MustCompile(`^[0-9]{10}$`)
	pincodeRegex     = regexp.MustCompile(`^[0-9]{6}$`)
)

// complaintForm is the intake form as submitted. Values are trimmed before
// validation; the phone number is checked as typed.
type complaintForm struct {
	CitizenName  string `form:"citizen_name" validate:"required"`
	CitizenEmail string `form:"citizen_email" validate:"required,email"`
	CitizenPhone string `form:"citizen_phone" validate:"required,indian_phone"`
	Description  string `form:"description" validate:"required,min=10"`
	State        string `form:"state" validate:"omitempty,indian_state"`
	District     string `form:"district"`
	City         string `form:"city"`
	Pincode      string `form:"pincode" validate:"omitempty,pincode"`
	Address      string `form:"address"`
}

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("indian_phone", validateIndianPhone)
	_ = v.RegisterValidation("pincode", validatePincode)
	_ = v.RegisterValidation("indian_state", validateIndianState)
	return v
}

func validateIndianPhone(fl validator.FieldLevel) bool {
	return indianPhoneRegex.MatchString(fl.Field().String())
}

func validatePincode(fl validator.FieldLevel) bool {
	return pincodeRegex.MatchString(fl.Field().String())
}

func validateIndianState(fl validator.FieldLevel) bool {
	return isIndianState(fl.Field().String())
}

func (f *complaintForm) normalize() {
	f.CitizenName = strings.TrimSpace(f.CitizenName)
	f.CitizenEmail = strings.TrimSpace(f.CitizenEmail)
	f.CitizenPhone = strings.TrimSpace(f.CitizenPhone)
	f.Description = strings.TrimSpace(f.Description)
	f.State = strings.TrimSpace(f.State)
	if canonical := canonicalStateName(f.State); canonical != "" {
		f.State = canonical
	}
	f.District = strings.TrimSpace(f.District)
	f.City = strings.TrimSpace(f.City)
	f.Pincode = strings.TrimSpace(f.Pincode)
	f.Address = strings.TrimSpace(f.Address)
}

// validateComplaintForm returns the localization key of the first failing rule
// per form field. An empty map means the form is valid.
func validateComplaintForm(v *validator.Validate, form complaintForm) map[string]string {
	fieldErrors := map[string]string{}
	err := v.Struct(form)
	if err == nil {
		return fieldErrors
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		fieldErrors["form"] = "error_unexpected"
		return fieldErrors
	}
	for _, fieldErr := range validationErrors {
		if _, exists := fieldErrors[fieldErr.Field()]; exists {
			continue
		}
		fieldErrors[fieldErr.Field()] = validationMessageKey(fieldErr)
	}
	return fieldErrors
}

func validationMessageKey(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "validation_required"
	case "email":
		return "validation_email"
	case "indian_phone":
		return "validation_phone"
	case "pincode":
		return "validation_pincode"
	case "indian_state":
		return "validation_state"
	case "min":
		return "validation_description_min"
	default:
		return "validation_invalid"
	}
}

func (f complaintForm) toPayload() backend.ComplaintCreate {
	return backend.ComplaintCreate{
		Description:  f.Description,
		CitizenName:  f.CitizenName,
		CitizenEmail: f.CitizenEmail,
		CitizenPhone: f.CitizenPhone,
		Location: backend.Location{
			Country:  complaintCountry,
			State:    f.State,
			District: f.District,
			City:     f.City,
			Pincode:  f.Pincode,
			Address:  f.Address,
		},
	}
}
