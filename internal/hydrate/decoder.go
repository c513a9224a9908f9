// Package hydrate turns loosely typed definition payloads, as produced by
// the JSON and YAML decoders, into typed structs. Each payload passes
// through three stages: normalizers rewrite a private copy, the copy is
// decoded, and validators check the result.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Origin names where a payload came from. It is only used in errors.
type Origin struct {
	Source  string
	Section string
}

func (o Origin) String() string {
	if o.Section == "" {
		return o.Source
	}
	return o.Source + "#" + o.Section
}

// Stage identifies the step a decode failed in.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageDecode    Stage = "decode"
	StageValidate  Stage = "validate"
)

// Error reports a failed decode together with its origin and stage.
type Error struct {
	Origin Origin
	Stage  Stage
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hydrate: %s %q: %v", e.Stage, e.Origin.String(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Normalizer rewrites payload in place. It always receives a copy, never
// the caller's map.
type Normalizer func(Origin, map[string]any) error

// Validator checks a decoded value and may fill in defaults.
type Validator[T any] func(Origin, *T) error

// Option configures a Decoder.
type Option[T any] func(*Decoder[T])

// Decoder decodes payloads into T.
type Decoder[T any] struct {
	strict      bool
	normalizers []Normalizer
	validators  []Validator[T]
}

// Strict rejects payload keys that do not map to a field of T.
func Strict[T any]() Option[T] {
	return func(d *Decoder[T]) { d.strict = true }
}

// WithNormalizer appends fn to the normalize stage.
func WithNormalizer[T any](fn Normalizer) Option[T] {
	return func(d *Decoder[T]) {
		if fn != nil {
			d.normalizers = append(d.normalizers, fn)
		}
	}
}

// WithValidator appends fn to the validate stage.
func WithValidator[T any](fn Validator[T]) Option[T] {
	return func(d *Decoder[T]) {
		if fn != nil {
			d.validators = append(d.validators, fn)
		}
	}
}

func NewDecoder[T any](opts ...Option[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode runs payload through the configured stages. The payload itself is
// never modified.
func (d *Decoder[T]) Decode(origin Origin, payload map[string]any) (T, error) {
	var zero T
	if payload == nil {
		return zero, &Error{Origin: origin, Stage: StageNormalize, Err: fmt.Errorf("payload is nil")}
	}

	current := copyMap(payload)
	for _, normalize := range d.normalizers {
		if err := normalize(origin, current); err != nil {
			return zero, &Error{Origin: origin, Stage: StageNormalize, Err: err}
		}
	}

	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, &Error{Origin: origin, Stage: StageDecode, Err: err}
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	if d.strict {
		decoder.DisallowUnknownFields()
	}
	var result T
	if err := decoder.Decode(&result); err != nil {
		return zero, &Error{Origin: origin, Stage: StageDecode, Err: err}
	}

	for _, validate := range d.validators {
		if err := validate(origin, &result); err != nil {
			return zero, &Error{Origin: origin, Stage: StageValidate, Err: err}
		}
	}
	return result, nil
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
