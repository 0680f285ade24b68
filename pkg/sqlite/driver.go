// Package sqlite registers the SQLite driver used by memchain storage.
//
// Every connection runs with foreign keys and a busy timeout, and gets a
// blake3(blob) SQL function returning the hex BLAKE3-256 digest so that
// stored content can be checked from inside queries.
package sqlite

import (
	"database/sql"
	"encoding/hex"

	"github.com/mattn/go-sqlite3"
	"github.com/zeebo/blake3"
)

const DriverName = "sqlite3_memchain"

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for _, p := range pragmas {
				if _, err := conn.Exec(p, nil); err != nil {
					return err
				}
			}
			return conn.RegisterFunc("blake3", blake3Hex, true)
		},
	})
}

func blake3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
