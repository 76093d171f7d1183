package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dineshvijayakumar2/flansa-builder/types"
	"github.com/go-playground/validator/v10"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// IsIdentifier reports whether s is safe to use as a table or column name.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Validator checks builder payloads once, where they cross the API or
// storage boundary.
type Validator struct {
	validator *validator.Validate
}

func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return IsIdentifier(fl.Field().String())
	})
	_ = v.RegisterValidation("filterop", func(fl validator.FieldLevel) bool {
		return types.FilterOperator(fl.Field().String()).Valid()
	})
	return &Validator{validator: v}
}

func (v *Validator) ValidateTable(table *types.Table) error {
	if err := v.check(table); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(table.Fields))
	for _, f := range table.Fields {
		if strings.HasPrefix(f.Name, types.ReservedPrefix) {
			return types.ValidationErrors{{
				Field:   f.Name,
				Tag:     "reserved",
				Message: fmt.Sprintf("field '%s' may not start with '%s'", f.Name, types.ReservedPrefix),
			}}
		}
		if _, dup := seen[f.Name]; dup {
			return types.ValidationErrors{{
				Field:   f.Name,
				Tag:     "unique",
				Message: fmt.Sprintf("field '%s' is declared twice", f.Name),
			}}
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// ValidateLayout checks every item of a persisted layout. Duplicate field
// references are reported as a DuplicateError.
func (v *Validator) ValidateLayout(items []types.LayoutItem) error {
	var errs types.ValidationErrors
	fields := make(map[string]struct{})
	ids := make(map[string]struct{})

	for i := range items {
		item := &items[i]
		if err := v.check(item); err != nil {
			var verrs types.ValidationErrors
			if errors.As(err, &verrs) {
				for _, e := range verrs {
					e.Field = fmt.Sprintf("items[%d].%s", i, e.Field)
					errs = append(errs, e)
				}
				continue
			}
			return err
		}

		if item.IsField() {
			if _, dup := fields[item.FieldRef]; dup {
				return &types.DuplicateError{Field: item.FieldRef}
			}
			fields[item.FieldRef] = struct{}{}
			continue
		}

		if _, dup := ids[item.ID]; dup {
			errs = append(errs, types.ValidationError{
				Field:   fmt.Sprintf("items[%d].id", i),
				Tag:     "unique",
				Value:   item.ID,
				Message: fmt.Sprintf("layout marker id '%s' is used twice", item.ID),
			})
		}
		ids[item.ID] = struct{}{}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateReportConfig checks the structure of a config and that every
// clause references a selected or known field of the base table.
func (v *Validator) ValidateReportConfig(config *types.ReportConfig, known []types.Field) error {
	if config == nil {
		return types.NewValidationError("config", "required", "report config is required")
	}
	if err := v.check(config); err != nil {
		return err
	}
	if known == nil {
		return nil
	}

	index := make(map[string]types.Field, len(known))
	for _, f := range known {
		index[f.Name] = f
	}

	var errs types.ValidationErrors
	unknown := func(path, name string) {
		if _, ok := index[name]; !ok {
			errs = append(errs, types.ValidationError{
				Field:   path,
				Tag:     "known_field",
				Value:   name,
				Message: fmt.Sprintf("field '%s' does not exist on table '%s'", name, config.BaseTable),
			})
		}
	}

	for i, f := range config.SelectedFields {
		unknown(fmt.Sprintf("selected_fields[%d]", i), f.Name)
	}
	for i, c := range config.Filters {
		unknown(fmt.Sprintf("filters[%d]", i), c.Field)
	}
	for i, c := range config.Sort {
		unknown(fmt.Sprintf("sort[%d]", i), c.Field)
	}
	for i, c := range config.GroupBy {
		unknown(fmt.Sprintf("group_by[%d]", i), c.Field)
		if f, ok := index[c.Field]; ok && !f.Type.IsGroupable() {
			return &types.NoGroupableFieldsError{Field: f.Name, Type: f.Type}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Struct validates any tagged struct and converts failures.
func (v *Validator) Struct(s interface{}) error {
	return v.check(s)
}

func (v *Validator) check(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := make(types.ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, types.ValidationError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Value:   fe.Value(),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "identifier":
		return fmt.Sprintf("Field '%s' must be a plain identifier, got '%v'", fe.Field(), fe.Value())
	case "filterop":
		return fmt.Sprintf("Unsupported filter operator '%v'", fe.Value())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("Field '%s' must have at least %s entries", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' failed on '%s'", fe.Field(), fe.Tag())
	}
}
