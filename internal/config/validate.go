package config

import (
	"fmt"
	"strings"

	"github.com/paneldiff/paneldiff/internal/panel"
)

// Validation error codes (E100-E119)
const (
	// Panel errors (E101-E109)
	ErrPanelIDEmpty    = "E101" // panel id missing or blank
	ErrDuplicatePanel  = "E102" // panel id used twice
	ErrInvalidKind     = "E103" // kind outside the single/multi enum
	ErrNoEnabledFields = "E104" // enabled panel with nothing to render

	// Field errors (E110-E119)
	ErrFieldNameEmpty = "E110" // field name missing or blank
	ErrDuplicateField = "E111" // field name used twice in one panel
	ErrAliasEmpty     = "E112" // blank alias entry
	ErrAliasAmbiguous = "E113" // alias claimed twice or shadowing a field name
)

// ValidationError is one semantic rule violation in a config document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the semantic rules the CUE schema cannot express: id and
// name uniqueness, alias disjointness within a panel, and that an enabled
// panel has something to render. Returns all errors found (does not
// fail-fast).
func Validate(doc *Document) []ValidationError {
	var errs []ValidationError
	seenPanels := make(map[string]bool)

	for i, def := range doc.Panels {
		path := fmt.Sprintf("panels[%d]", i)

		if strings.TrimSpace(def.ID) == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".id",
				Message: "panel id is required and must be non-empty",
				Code:    ErrPanelIDEmpty,
			})
		}
		if def.ID != "" && seenPanels[def.ID] {
			errs = append(errs, ValidationError{
				Field:   path + ".id",
				Message: fmt.Sprintf("duplicate panel id %q", def.ID),
				Code:    ErrDuplicatePanel,
			})
		}
		seenPanels[def.ID] = true

		switch def.Kind {
		case "", string(panel.KindSingle), string(panel.KindMulti):
		default:
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("invalid kind %q, must be \"single\" or \"multi\"", def.Kind),
				Code:    ErrInvalidKind,
			})
		}

		// Display names, collected up front so aliases can be checked
		// against fields declared later in the panel too.
		names := make(map[string]bool)
		for _, fd := range def.Fields {
			names[fd.Name] = true
		}

		seenFields := make(map[string]bool)
		aliasOwner := make(map[string]string)
		enabledFields := 0

		for j, fd := range def.Fields {
			fpath := fmt.Sprintf("%s.fields[%d]", path, j)

			if strings.TrimSpace(fd.Name) == "" {
				errs = append(errs, ValidationError{
					Field:   fpath + ".name",
					Message: "field name is required and must be non-empty",
					Code:    ErrFieldNameEmpty,
				})
			}
			if fd.Name != "" && seenFields[fd.Name] {
				errs = append(errs, ValidationError{
					Field:   fpath + ".name",
					Message: fmt.Sprintf("duplicate field name %q in panel %q", fd.Name, def.ID),
					Code:    ErrDuplicateField,
				})
			}
			seenFields[fd.Name] = true

			for k, alias := range fd.Aliases {
				apath := fmt.Sprintf("%s.aliases[%d]", fpath, k)
				if strings.TrimSpace(alias) == "" {
					errs = append(errs, ValidationError{
						Field:   apath,
						Message: "alias must be non-empty",
						Code:    ErrAliasEmpty,
					})
					continue
				}
				if owner, ok := aliasOwner[alias]; ok && owner != fd.Name {
					errs = append(errs, ValidationError{
						Field:   apath,
						Message: fmt.Sprintf("alias %q already claimed by field %q", alias, owner),
						Code:    ErrAliasAmbiguous,
					})
					continue
				}
				aliasOwner[alias] = fd.Name
				if alias != fd.Name && names[alias] {
					errs = append(errs, ValidationError{
						Field:   apath,
						Message: fmt.Sprintf("alias %q shadows the display name of another field", alias),
						Code:    ErrAliasAmbiguous,
					})
				}
			}

			if fd.enabled() {
				enabledFields++
			}
		}

		if def.enabled() && enabledFields == 0 {
			errs = append(errs, ValidationError{
				Field:   path + ".fields",
				Message: fmt.Sprintf("enabled panel %q needs at least one enabled field", def.ID),
				Code:    ErrNoEnabledFields,
			})
		}
	}

	return errs
}
