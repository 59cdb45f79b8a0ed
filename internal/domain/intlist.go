package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IntList stores an ordered list of integers as a JSON text column. Used for
// reminder offsets (minutes before an occurrence) and ISO work days.
type IntList []int

// Value implements driver.Valuer.
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *IntList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("intlist: unsupported source type %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]int)(l))
}

// Contains reports whether v is present in the list.
func (l IntList) Contains(v int) bool {
	for _, x := range l {
		if x == v {
			return true
		}
	}
	return false
}
