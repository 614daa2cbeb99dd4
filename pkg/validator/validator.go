package validator

import (
	"net/http"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/pkg/response"
)

// actorPattern matches audit actors such as "operator:jane" or
// "system:evaluator".
var actorPattern = regexp.MustCompile(`^[a-z]+:[A-Za-z0-9._@+-]{1,100}$`)

// CustomValidator wraps the validator instance for Echo.
type CustomValidator struct {
	validator  *validator.Validate
	translator ut.Translator
}

func New() *CustomValidator {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := field.Tag.Get("json")
		if tag == "" {
			return field.Name
		}

		name := strings.SplitN(tag, ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}

		return name
	})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic("failed to register validator default translations: " + err.Error())
	}

	registerRule(validate, trans, "actor", func(fl validator.FieldLevel) bool {
		return actorPattern.MatchString(fl.Field().String())
	}, "{0} must look like kind:name, e.g. operator:jane")
	registerRule(validate, trans, "notblank", validators.NotBlank, "{0} must not be blank")

	return &CustomValidator{
		validator:  validate,
		translator: trans,
	}
}

// registerRule adds a custom tag together with its English message.
func registerRule(validate *validator.Validate, trans ut.Translator, tag string, fn validator.Func, message string) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic("failed to register " + tag + " validation: " + err.Error())
	}

	err := validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
	if err != nil {
		panic("failed to register " + tag + " translation: " + err.Error())
	}
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{
				Errors: cv.translateErrors(validationErrors),
			}
		}
		return err
	}
	return nil
}

func (cv *CustomValidator) translateErrors(errs validator.ValidationErrors) map[string]string {
	errors := make(map[string]string)
	for _, err := range errs {
		field := err.Field()
		errors[field] = err.Translate(cv.translator)
	}
	return errors
}

type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

// Error lists field messages in field order so logs are stable.
func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, field+": "+e.Errors[field])
	}
	return strings.Join(messages, "; ")
}

type ValidationErrorResponse struct {
	response.ErrorResponse
	Details map[string]string `json:"details,omitempty"`
}

// HandleValidationError writes 422 with per-field messages, or 400 when err
// did not come from struct validation.
func HandleValidationError(c echo.Context, err error) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	if ve, ok := err.(*ValidationError); ok {
		return c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
			ErrorResponse: response.ErrorResponse{
				Success:   false,
				Code:      response.CodeValidationFailed,
				Error:     "Validation failed",
				RequestID: requestID,
			},
			Details: ve.Errors,
		})
	}
	return response.BadRequest(c, err)
}
