package docstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies document fields into out, a pointer to a struct tagged with
// `doc:"name"`. Values may come from any backend: native Go values, JSON
// numbers, or RFC 3339 strings for timestamps.
func Decode(in Fields, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "doc",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			timeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(in)); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// timeHook passes time.Time values through untouched and maps the
// ServerTimestamp sentinel, which can appear in pending writes, to the zero
// time.
func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}
		return *v, nil
	case serverTimestamp:
		return time.Time{}, nil
	}
	return data, nil
}
