package db

import (
	"context"
	"fmt"
)

const (
	DriverMySQL = "mysql"
	DriverMongo = "mongo"
)

// Options selects and addresses the backing database.
type Options struct {
	Driver   string // mysql or mongo
	DSN      string // mysql DSN or mongodb:// URI
	Database string // mongo database name
}

// Open connects the store chosen by opts.Driver, prepares its schema or
// indexes and returns it with a function that releases the connection.
func Open(ctx context.Context, opts Options) (Store, func(context.Context) error, error) {
	switch opts.Driver {
	case DriverMySQL, "":
		gdb, err := ConnectMySQL(opts.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := NewGormStore(gdb)
		if err := s.Sync(); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("migrate payment requests: %w", err)
		}
		return s, func(context.Context) error { return s.Close() }, nil

	case DriverMongo:
		client, err := ConnectMongo(ctx, opts.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := NewMongoStore(client, opts.Database)
		if err := s.EnsureIndexes(ctx); err != nil {
			s.Close(ctx)
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}
