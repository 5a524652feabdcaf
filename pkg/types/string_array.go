package types

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray stores a list of strings as a native text[] on Postgres.
// Other dialects get a plain text column holding the pq array literal,
// which keeps the sqlite test databases loadable.
type StringArray pq.StringArray

// Scan implements sql.Scanner.
func (a *StringArray) Scan(src any) error {
	return (*pq.StringArray)(a).Scan(src)
}

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	return pq.StringArray(a).Value()
}

// GormDataType implements schema.GormDataTypeInterface so gorm can parse
// the field; GormDBDataType below overrides it per dialect at migration time.
func (StringArray) GormDataType() string {
	return "text"
}

// GormDBDataType implements schema.GormDBDataTypeInterface.
func (StringArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}
