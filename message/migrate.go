package message

// Migrator rewrites the stored JSON representation of a message produced by
// an older schema into the current schema.
//
// It is applied to every message body read from the database before it is
// decoded.
type Migrator interface {
	Migrate(data []byte) ([]byte, error)
}

// MigratorFunc is an adaptor that allows use of an ordinary function as a
// Migrator.
type MigratorFunc func(data []byte) ([]byte, error)

// Migrate calls fn(data).
func (fn MigratorFunc) Migrate(data []byte) ([]byte, error) {
	return fn(data)
}
