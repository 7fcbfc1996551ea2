package hierarchy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxNameLength applies when Options.MaxNameLength is not set
const DefaultMaxNameLength = 100

var validate = validator.New()

// normalizeName trims the name and checks it against the configured bound.
// Length is counted in characters, not bytes.
func normalizeName(name string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxNameLength
	}
	name = strings.TrimSpace(name)
	if err := validate.Var(name, fmt.Sprintf("required,max=%d", maxLen)); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
			return "", &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxLen)}
		}
		return "", &ValidationError{Field: "name", Message: "must not be empty"}
	}
	return name, nil
}
