package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnscored is matched by every UnscoredError
var ErrUnscored = errors.New("no scoring band matched")

// Field error codes
const (
	CodeRequired       = "required"
	CodeInvalidRange   = "invalid_range"
	CodeNotFinite      = "not_finite"
	CodeMinExceedsMax  = "min_exceeds_max"
	CodeEmptyGradeName = "empty_grade_name"
	CodeUnknownValue   = "unknown_value"
	CodeTypeMismatch   = "type_mismatch"
	CodeDuplicate      = "duplicate"
	CodeDependency     = "invalid_dependency"
	CodeOutOfRange     = "out_of_range"
	CodeSchema         = "schema"
)

// FieldError describes one invalid field of a rule or model configuration
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return f.Field + ": " + f.Message
}

// ValidationError collects the field errors found while validating a configuration
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func newValidationError(errs ...FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, f := range e.Errors {
		parts[i] = f.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// prefixed returns the field errors with every field path placed under prefix
func (e *ValidationError) prefixed(prefix string) []FieldError {
	out := make([]FieldError, len(e.Errors))
	for i, f := range e.Errors {
		if f.Field == "" {
			f.Field = prefix
		} else {
			f.Field = prefix + "." + f.Field
		}
		out[i] = f
	}
	return out
}

// AsValidationError extracts a *ValidationError from err's chain
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// UnscoredError reports an observation that no band or mapping of the rule covers
type UnscoredError struct {
	RuleType RuleType
	Value    RawValue
}

// Error implements the error interface
func (e *UnscoredError) Error() string {
	return fmt.Sprintf("%s rule has no band for value %q", e.RuleType, e.Value.String())
}

// Is makes errors.Is(err, ErrUnscored) hold for every UnscoredError
func (e *UnscoredError) Is(target error) bool {
	return target == ErrUnscored
}

// Warning is a non-fatal finding about a model configuration
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes
const (
	WarnWeightImbalance = "WEIGHT_IMBALANCE"
	WarnGradeGap        = "GRADE_GAP"
	WarnGradeOverlap    = "GRADE_OVERLAP"
	WarnEmptyRule       = "EMPTY_RULE"
)

// WeightImbalanceWarning reports that weighted indicators do not add up to 100
type WeightImbalanceWarning struct {
	Total    float64 `json:"total"`
	Expected float64 `json:"expected"`
}

// Warning converts the imbalance into a generic model warning
func (w *WeightImbalanceWarning) Warning() Warning {
	return Warning{
		Code:    WarnWeightImbalance,
		Message: fmt.Sprintf("total weight is %s%%, expected %s%%", formatNumber(w.Total), formatNumber(w.Expected)),
	}
}
