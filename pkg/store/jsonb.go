package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	goerrors "github.com/go-faster/errors"
)

// jsonColumn adapts an arbitrary Go value to a Postgres JSONB column via
// database/sql's Valuer/Scanner, used for the map- and slice-shaped
// fields on Hypothesis, RuntimeBinding, and ClusterStats that have no
// natural flat column representation.
type jsonColumn struct {
	dest interface{}
}

func (j jsonColumn) Value() (driver.Value, error) {
	b, err := json.Marshal(j.dest)
	if err != nil {
		return nil, goerrors.Wrap(err, "store: marshalling jsonb column")
	}
	return b, nil
}

func (j jsonColumn) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("store: unsupported jsonb source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, j.dest)
}
