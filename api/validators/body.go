package validators

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
)

var (
	validate       = newValidator()
	currencyCodeRe = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyCodeRe.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("billing_period", func(fl validator.FieldLevel) bool {
		_, err := enums.ParseBillingPeriod(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
		return err == nil
	})
	return v
}

// DecodeJSONBody decodes a strict JSON body into dest and runs struct
// validation. Unknown fields are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "currency":
		return "must be a three-letter currency code"
	case "billing_period":
		return "must be MONTHLY or YEARLY"
	case "email":
		return "must be a valid email"
	}
	return "is invalid"
}
