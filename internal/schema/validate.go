package schema

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

// Validator returns the package-wide validator instance, registering the
// custom "wordcount" rule (used by Threat.Description) on first use.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
		if err := validatorInst.RegisterValidation("wordcount", wordCountRule); err != nil {
			panic(fmt.Sprintf("schema: failed to register wordcount validator: %v", err))
		}
	})
	return validatorInst
}

// wordCountRule implements validate:"wordcount=min,max" on a string field,
// counting words by whitespace splitting.
func wordCountRule(fl validator.FieldLevel) bool {
	params := strings.Split(fl.Param(), ",")
	if len(params) != 2 {
		return false
	}
	min, err := strconv.Atoi(params[0])
	if err != nil {
		return false
	}
	max, err := strconv.Atoi(params[1])
	if err != nil {
		return false
	}
	words := strings.Fields(fl.Field().String())
	return len(words) >= min && len(words) <= max
}

// Validate runs struct validation on any schema value, returning a single
// wrapped error describing every failing field.
func Validate(v any) error {
	if err := Validator().Struct(v); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("schema validation failed: %s", strings.Join(fields, "; "))
		}
		return err
	}
	return nil
}
