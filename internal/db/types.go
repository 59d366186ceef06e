package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// NullText is a string that maps "" to SQL NULL and JSON null.
// It implements sql.Scanner and driver.Valuer so it works with nullable text columns.
type NullText string

// Scan implements sql.Scanner
func (n *NullText) Scan(src interface{}) error {
	if n == nil {
		return fmt.Errorf("dbtypes: Scan on nil *NullText")
	}
	switch v := src.(type) {
	case nil:
		*n = ""
	case []byte:
		*n = NullText(v)
	case string:
		*n = NullText(v)
	default:
		return fmt.Errorf("dbtypes: cannot scan type %T into NullText", src)
	}
	return nil
}

// Value implements driver.Valuer
func (n NullText) Value() (driver.Value, error) {
	if n == "" {
		return nil, nil
	}
	return string(n), nil
}

func (n NullText) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(n))
}

func (n *NullText) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*n = NullText(s)
	return nil
}

func (n NullText) String() string { return string(n) }
