package shared

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxRequestBody caps decoded request bodies.
const MaxRequestBody = 1 << 20

// taskIDPattern keeps task ids safe as file names on both hosts.
var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]{0,127}$`)

// Global validator instance for reuse
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("taskid", func(fl validator.FieldLevel) bool {
		return ValidTaskID(fl.Field().String())
	})
	return v
}

// ValidTaskID reports whether id can be used as a task id.
func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// DecodeJSON decodes the request body into the given struct.
func DecodeJSON(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxRequestBody)
	return json.NewDecoder(body).Decode(v)
}

// ValidateRequest validates the given struct using the validator package.
// Structs with their own Validate method are validated by both.
func ValidateRequest(v any) error {
	if err := validate.Struct(v); err != nil {
		return err
	}
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}
	return nil
}
