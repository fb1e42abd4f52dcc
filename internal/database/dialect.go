package database

// Dialect names the SQL flavour behind a *sql.DB.  Queries are written
// with "?" placeholders, which both drivers accept.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ForUpdate returns the row locking suffix for SELECT statements that run
// inside a transaction.  SQLite has no row locks; its single writer
// connection already serializes transactions.
func (d Dialect) ForUpdate() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}
