package pure3270

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Validator validates one field's submitted text, the client-side analog of
// the teacher's looper.go Validator: true means the value is acceptable.
type Validator func(input string) bool

// NonBlank is a Validator that rejects an all-whitespace value, the same
// rule as the teacher's looper.go NonBlank.
var NonBlank Validator = func(input string) bool {
	return strings.TrimSpace(input) != ""
}

var isIntegerRegexp = regexp.MustCompile(`^-?[0-9]+$`)

// IsInteger is a Validator that accepts an (optionally signed) integer,
// ignoring surrounding whitespace, mirroring the teacher's looper.go
// IsInteger.
var IsInteger Validator = func(input string) bool {
	return isIntegerRegexp.MatchString(strings.TrimSpace(input))
}

// FieldRules is the validation policy for one unprotected field, the
// client-side analog of the teacher's looper.go FieldRules. The teacher
// re-presents the screen and loops until its rules pass; a Session has no
// host-side screen to re-present, so a failed rule is reported to the
// caller instead of retried.
type FieldRules struct {
	// MustChange requires the field's submitted value to differ from
	// Original, the value the caller displayed before this round trip
	// (there is no server-side "original field content" to diff against
	// here, so the caller supplies it).
	MustChange bool
	Original   string

	// ErrorText overrides the default message when MustChange fails.
	ErrorText string

	// Validator runs after MustChange, same ordering as the teacher's
	// HandleScreenAlt.
	Validator Validator
}

// Rules maps an unprotected field's position — its index within the
// screen-order sequence of unprotected fields ValidateUnprotectedFields
// inspects — to the rules it must satisfy. Unlike the teacher's Rules,
// which keys by Field.Name, a Session's fields carry no name, only screen
// position.
type Rules map[int]FieldRules

// ValidateUnprotectedFields reads the current screen's unprotected fields,
// in screen order, and checks each one named in rules against its
// FieldRules, per the teacher's HandleScreenAlt validation pass (spec.md
// §1's supplemental field-validation feature). It returns one message per
// failed rule, in no particular order; a nil result means every named
// field passed.
func (s *Session) ValidateUnprotectedFields(ctx context.Context, rules Rules) ([]string, error) {
	v, err := s.do(ctx, func() (any, error) {
		fields := s.buf.ModifiedFields(true)
		var failures []string
		for i, fr := range rules {
			if i < 0 || i >= len(fields) {
				continue
			}
			value := s.buf.Codepage().Decode(fields[i].Content)
			if fr.MustChange && value == fr.Original {
				msg := fr.ErrorText
				if msg == "" {
					msg = fmt.Sprintf("field %d: please enter a valid value", i)
				}
				failures = append(failures, msg)
				continue
			}
			if fr.Validator != nil && !fr.Validator(value) {
				failures = append(failures, fmt.Sprintf("field %d: value is not valid", i))
			}
		}
		return failures, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
