package analytics

import (
	"strings"

	dErrors "tally/pkg/domain-errors"
)

// Schema declares the contract for one event name: its category, current
// version, and the metadata fields producers must supply.
type Schema struct {
	Name     string
	Category string
	Version  int
	Required []string
}

// Registry resolves schemas by event name. Unrecognized names are allowed
// through with a warning (forward compatibility), so producers can ship new
// events before the registry catches up.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry builds a registry with the built-in schemas plus any extras.
func NewRegistry(extra ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema)}
	for _, s := range builtinSchemas {
		r.schemas[s.Name] = s
	}
	for _, s := range extra {
		r.schemas[s.Name] = s
	}
	return r
}

var builtinSchemas = []Schema{
	{Name: EventUserRegistered, Category: CategoryLifecycle, Version: 1, Required: []string{"channel"}},
	{Name: EventDocumentUploaded, Category: CategoryEngagement, Version: 2, Required: []string{"document_type"}},
	{Name: EventQuestionnaireSubmitted, Category: CategoryEngagement, Version: 1, Required: []string{"questionnaire_id"}},
	{Name: EventPointsAwarded, Category: CategoryGamification, Version: 1, Required: []string{"action", "points"}},
	{Name: EventLevelUp, Category: CategoryGamification, Version: 1, Required: []string{"level"}},
}

// Lookup returns the schema for name and whether it is registered.
func (r *Registry) Lookup(name string) (Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Validate checks metadata against the schema's required fields.
//
// Errors: CodeValidation naming every missing field; nil when complete.
func (s Schema) Validate(metadata map[string]any) error {
	var missing []string
	for _, field := range s.Required {
		if v, ok := metadata[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeValidation,
			"event %s missing required fields: %s", s.Name, strings.Join(missing, ", "))
	}
	return nil
}
