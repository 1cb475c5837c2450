package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Schema versions:
// 1 - Dirty paths (d:) and capture stats (s:)
const CurrentSchemaVersion = 1

const schemaKey = prefixMeta + "__schema__"

// ErrNewerSchema is returned when the journal was written by a newer version.
var ErrNewerSchema = errors.New("journal schema is newer than supported")

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSchema returns the current schema version, or nil if not set.
func (d *DB) GetSchema() *Schema {
	var schema *Schema

	_ = d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})

	return schema
}

// SetSchema stores the schema version.
func (d *DB) SetSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), data)
	})
}

// ensureSchema stamps a fresh journal and refuses one from a newer version.
func (d *DB) ensureSchema() error {
	schema := d.GetSchema()
	if schema == nil {
		return d.SetSchema(&Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()})
	}
	if schema.Version > CurrentSchemaVersion {
		return fmt.Errorf("%w: version %d", ErrNewerSchema, schema.Version)
	}
	return nil
}
