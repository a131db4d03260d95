package source

import (
	"encoding/json"
	"strings"

	"github.com/antonholmquist/jason"
)

// Record is one opaque row of the legacy listing.
type Record struct {
	obj *jason.Object
}

// ParseRecord decodes a single JSON object.
func ParseRecord(data []byte) (Record, error) {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return Record{}, err
	}
	return Record{obj: obj}, nil
}

// FromObject wraps an already decoded object.
func FromObject(obj *jason.Object) Record {
	return Record{obj: obj}
}

// RecordFromMap builds a Record from decoded JSON values.
func RecordFromMap(m map[string]any) (Record, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Record{}, err
	}
	return ParseRecord(data)
}

// Get returns field as a string. Numbers keep their JSON text, booleans
// read as "true"/"false", and null or missing fields read as "".
func (r Record) Get(field string) string {
	if r.obj == nil {
		return ""
	}
	v, err := r.obj.GetValue(field)
	if err != nil {
		return ""
	}
	if s, err := v.String(); err == nil {
		return s
	}
	if n, err := v.Number(); err == nil {
		return n.String()
	}
	if b, err := v.Boolean(); err == nil {
		if b {
			return "true"
		}
		return "false"
	}
	return ""
}

// Trimmed returns Get(field) with surrounding whitespace removed.
func (r Record) Trimmed(field string) string {
	return strings.TrimSpace(r.Get(field))
}

// RegDay is the YYYY-MM-DD prefix of reg_date. A shorter value is
// returned whole, and a missing one as "".
func (r Record) RegDay() string {
	d := r.Get("reg_date")
	if len(d) < 10 {
		return d
	}
	return d[:10]
}

func (r Record) String() string {
	if r.obj == nil {
		return "{}"
	}
	return r.obj.String()
}
