// Package validate normalizes and checks request structs using their
// conform and validate tags.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/leebenson/conform"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

var (
	shared *Validator
	once   sync.Once
)

type Validator struct {
	validator *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Report json field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("entitytype", entityType); err != nil {
		panic(err)
	}
	return &Validator{validator: v}
}

// Struct conforms string fields in place, then validates. i must be a
// pointer to a struct.
func (m *Validator) Struct(i any) error {
	if err := conform.Strings(i); err != nil {
		return err
	}
	return m.validator.Struct(i)
}

// Get returns the process-wide validator.
func Get() *Validator {
	once.Do(func() { shared = New() })
	return shared
}

// Struct runs the process-wide validator.
func Struct(i any) error { return Get().Struct(i) }

// Message renders validation failures as "field: rule" pairs.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func entityType(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, ok = types.ParseEntityType(s)
	return ok
}
