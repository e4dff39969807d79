package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrMalformed is returned when the model reply is not the JSON object the
// call expected. It is never retried.
var ErrMalformed = errors.New("malformed insight response")

var (
	actionTypes   = []string{"send_message", "schedule_call", "send_proposal", "follow_up", "wait"}
	priorities    = []string{"high", "medium", "low"}
	customerTypes = []string{"lead", "prospect", "active_customer", "inactive", "vip"}
)

// decodeObject unmarshals a model reply into out, a pointer to a struct. A
// single surrounding code fence is tolerated. Anything that is not a JSON
// object, or an object sharing no key with out's json fields, is rejected.
func decodeObject(raw string, out any) error {
	body := stripFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(body, "{") {
		return fmt.Errorf("%w: expected JSON object, got %q", ErrMalformed, preview(body))
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &keys); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !sharesKey(keys, out) {
		return fmt.Errorf("%w: no expected fields in %q", ErrMalformed, preview(body))
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// sharesKey reports whether obj has at least one key named by a json tag of
// the struct out points to.
func sharesKey(obj map[string]json.RawMessage, out any) bool {
	t := reflect.TypeOf(out)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return true
	}
	t = t.Elem()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			name = t.Field(i).Name
		}
		if _, ok := obj[name]; ok {
			return true
		}
	}
	return false
}

// requireFields takes name/value pairs and fails on the first empty value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: missing %s", ErrMalformed, pairs[i])
		}
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag line, e.g. ```json
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func checkEnum(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q not one of %v", ErrMalformed, field, value, allowed)
}

func preview(s string) string {
	const max = 60
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
