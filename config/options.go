package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Objects declare their options on exported struct fields:
//
//	Limit int    `option:"concurrent-flasher-limit"`
//	Name  string `option:"package,mandatory"`
//
// Supported kinds are string, bool, integers, float64, time.Duration,
// []string (each value appends) and map[string]string (key and value).

type optionKind int

const (
	kindUnknown optionKind = iota
	kindValue
	kindBool
	kindMap
)

var durationType = reflect.TypeOf(time.Duration(0))

type optionField struct {
	name      string
	mandatory bool
	value     reflect.Value
}

// declaredOptions returns the options of obj sorted by name. Objects that are
// not struct pointers declare none.
func declaredOptions(obj any) []optionField {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	var out []optionField
	collectOptions(v.Elem(), &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func collectOptions(v reflect.Value, out *[]optionField) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			collectOptions(v.Field(i), out)
			continue
		}
		tag, ok := sf.Tag.Lookup("option")
		if !ok || !sf.IsExported() {
			continue
		}
		name, flags, _ := strings.Cut(tag, ",")
		*out = append(*out, optionField{
			name:      name,
			mandatory: flags == "mandatory",
			value:     v.Field(i),
		})
	}
}

func lookupOption(obj any, name string) (optionField, bool) {
	for _, f := range declaredOptions(obj) {
		if f.name == name {
			return f, true
		}
	}
	return optionField{}, false
}

func (f optionField) kind() optionKind {
	switch f.value.Kind() {
	case reflect.Bool:
		return kindBool
	case reflect.Map:
		return kindMap
	default:
		return kindValue
	}
}

// set assigns value to the field. key is only used by map options.
func (f optionField) set(key, value string) error {
	v := f.value
	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		if v.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			v.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Float64:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		v.SetFloat(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported option type %s", v.Type())
		}
		v.Set(reflect.Append(v, reflect.ValueOf(value)))
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String || v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported option type %s", v.Type())
		}
		if key == "" {
			return fmt.Errorf("map option requires a key")
		}
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		v.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(value))
	default:
		return fmt.Errorf("unsupported option type %s", v.Type())
	}
	return nil
}

func (f optionField) String() string {
	return fmt.Sprint(f.value.Interface())
}
