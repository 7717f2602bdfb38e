package interpolation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const tagName = "env_interpolation"

// InterpolateStruct expands the process environment into v.
func InterpolateStruct(v any) error {
	return NewExpander(nil).Struct(v)
}

// Struct expands references in place in every field of v tagged
// `env_interpolation:"yes"`. Tagged fields may be strings, string slices,
// maps with string keys, nested structs, or pointers and slices of structs.
// Map values that are strings are expanded; other values are left alone.
func (e *Expander) Struct(v any) error {
	if v == nil {
		return nil
	}
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct or pointer to struct, got %T", v)
	}
	if !val.CanAddr() {
		return fmt.Errorf("cannot modify %T, pass a pointer", v)
	}
	return e.walkStruct(val)
}

func (e *Expander) walkStruct(val reflect.Value) error {
	typ := val.Type()
	var errs []error
	for i := range val.NumField() {
		field := val.Field(i)
		info := typ.Field(i)
		if !field.CanSet() || !strings.EqualFold(info.Tag.Get(tagName), "yes") {
			continue
		}
		if err := e.walk(field); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", info.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Expander) walk(field reflect.Value) error {
	switch field.Kind() {
	case reflect.String:
		if field.String() == "" {
			return nil
		}
		out, err := e.Expand(field.String())
		if err != nil {
			return err
		}
		field.SetString(out)
		return nil

	case reflect.Struct:
		return e.walkStruct(field)

	case reflect.Pointer:
		if field.IsNil() || field.Elem().Kind() != reflect.Struct {
			return nil
		}
		return e.walkStruct(field.Elem())

	case reflect.Slice:
		var errs []error
		for j := range field.Len() {
			if err := e.walk(field.Index(j)); err != nil {
				errs = append(errs, fmt.Errorf("[%d]: %w", j, err))
			}
		}
		return errors.Join(errs...)

	case reflect.Map:
		if field.IsNil() || field.Type().Key().Kind() != reflect.String {
			return nil
		}
		return e.walkMap(field)
	}
	return nil
}

func (e *Expander) walkMap(field reflect.Value) error {
	var errs []error
	iter := field.MapRange()
	for iter.Next() {
		key, value := iter.Key(), iter.Value()
		if value.Kind() == reflect.Interface {
			value = value.Elem()
		}
		if value.Kind() != reflect.String {
			continue
		}
		out, err := e.Expand(value.String())
		if err != nil {
			errs = append(errs, fmt.Errorf("[%s]: %w", key.String(), err))
			continue
		}
		field.SetMapIndex(key, reflect.ValueOf(out).Convert(field.Type().Elem()))
	}
	return errors.Join(errs...)
}
