package scoring

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var nullableNumber = []string{"number", "null"}

// RuleSchema returns the JSON schema accepted for a rule type's ruleConfig payload
func RuleSchema(t RuleType) (map[string]interface{}, bool) {
	switch t {
	case RuleThreshold:
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"thresholds": map[string]interface{}{
					"type": []string{"array", "null"},
					"items": map[string]interface{}{
						"type":     "object",
						"required": []string{"operator", "value1", "score"},
						"properties": map[string]interface{}{
							"id":       map[string]interface{}{"type": "string"},
							"operator": map[string]interface{}{"enum": []string{"<", "<=", ">", ">=", "range"}},
							"value1":   map[string]interface{}{"type": "number"},
							"value2":   map[string]interface{}{"type": nullableNumber},
							"score":    map[string]interface{}{"type": "number"},
						},
						"additionalProperties": false,
					},
				},
			},
			"additionalProperties": false,
		}, true
	case RuleRatio:
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ratioType":        map[string]interface{}{"enum": []string{"PROPORTIONAL", "DEDUCTION"}},
				"ratioBase":        map[string]interface{}{"type": "number"},
				"ratioCoefficient": map[string]interface{}{"type": "number"},
				"ratioMin":         map[string]interface{}{"type": nullableNumber},
				"ratioMax":         map[string]interface{}{"type": nullableNumber},
			},
			"additionalProperties": false,
		}, true
	case RuleGradeMap:
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"gradeMapping": map[string]interface{}{
					"type": []string{"array", "null"},
					"items": map[string]interface{}{
						"type":     "object",
						"required": []string{"gradeName", "score"},
						"properties": map[string]interface{}{
							"id":        map[string]interface{}{"type": "string"},
							"gradeName": map[string]interface{}{"type": "string"},
							"score":     map[string]interface{}{"type": "number"},
						},
						"additionalProperties": false,
					},
				},
			},
			"additionalProperties": false,
		}, true
	case RuleDeduction:
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"deductionBase":    map[string]interface{}{"type": "number"},
				"deductionPerUnit": map[string]interface{}{"type": "number"},
				"deductionMin":     map[string]interface{}{"type": "number"},
			},
			"additionalProperties": false,
		}, true
	case RuleBonus:
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"bonusTrigger": map[string]interface{}{"type": "number"},
				"bonusPerUnit": map[string]interface{}{"type": "number"},
				"bonusCap":     map[string]interface{}{"type": "number"},
			},
			"additionalProperties": false,
		}, true
	}
	return nil, false
}

var (
	schemaOnce sync.Once
	schemas    map[RuleType]*gojsonschema.Schema
	schemaErr  error
)

func compiledSchemas() (map[RuleType]*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemas = make(map[RuleType]*gojsonschema.Schema, len(RuleTypes))
		for _, t := range RuleTypes {
			def, _ := RuleSchema(t)
			s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
			if err != nil {
				schemaErr = fmt.Errorf("failed to compile %s schema: %w", t, err)
				return
			}
			schemas[t] = s
		}
	})
	return schemas, schemaErr
}

// ValidateRuleConfig checks a raw ruleConfig payload against its rule type's schema
func ValidateRuleConfig(t RuleType, raw []byte) error {
	all, err := compiledSchemas()
	if err != nil {
		return err
	}
	schema, ok := all[t]
	if !ok {
		return newValidationError(FieldError{Field: "ruleType", Code: CodeUnknownValue, Message: fmt.Sprintf("unknown rule type %q", t)})
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return newValidationError(FieldError{Code: CodeSchema, Message: fmt.Sprintf("malformed rule configuration: %v", err)})
	}
	if result.Valid() {
		return nil
	}

	errs := make([]FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, FieldError{
			Field:   schemaField(desc),
			Code:    CodeSchema,
			Message: desc.Description(),
		})
	}
	return newValidationError(errs...)
}

func schemaField(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		field = ""
	}
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	return field
}
