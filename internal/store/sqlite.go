package store

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/kraklabs/registryd/internal/model"
)

// durable wraps the on-disk SQLite row store backing the registry's object
// table. One file per node; created on first boot.
//
// Loading from an existing file never fails the process: a corrupt row is
// logged and skipped rather than aborting startup.
type durable struct {
	db  *sql.DB
	log *logrus.Entry
}

const schema = `CREATE TABLE IF NOT EXISTS objects(
	name TEXT PRIMARY KEY,
	address TEXT,
	language TEXT,
	version TEXT,
	region TEXT,
	last_seen REAL
)`

func openDurable(path string, log *logrus.Entry) (*durable, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create objects table")
	}
	return &durable{db: db, log: log}, nil
}

// putRow upserts a row. origin is never persisted: on reload every row is
// tagged OriginLocal regardless of where it came from.
func (d *durable) putRow(r model.Record) error {
	_, err := d.db.Exec(`INSERT INTO objects(name,address,language,version,region,last_seen)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			address=excluded.address, language=excluded.language,
			version=excluded.version, region=excluded.region,
			last_seen=excluded.last_seen`,
		r.Name, r.Address, r.Language, r.Version, r.Region, r.LastSeen)
	return err
}

func (d *durable) deleteRow(name string) error {
	_, err := d.db.Exec(`DELETE FROM objects WHERE name = ?`, name)
	return err
}

// loadAll reads every row, skipping (and logging) any row that fails to
// decode rather than failing the whole load.
func (d *durable) loadAll() ([]model.Record, error) {
	rows, err := d.db.Query(`SELECT name,address,language,version,region,last_seen FROM objects`)
	if err != nil {
		return nil, errors.Wrap(err, "query objects")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var r model.Record
		if err := rows.Scan(&r.Name, &r.Address, &r.Language, &r.Version, &r.Region, &r.LastSeen); err != nil {
			d.log.WithError(err).Warn("corrupt snapshot row, skipping")
			continue
		}
		r.Origin = model.OriginLocal
		out = append(out, r)
	}
	return out, rows.Err()
}

// rewriteAll performs a full dump of the current table: every record is
// rewritten inside one transaction.
func (d *durable) rewriteAll(records []model.Record) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM objects`); err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO objects(name,address,language,version,region,last_seen) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.Name, r.Address, r.Language, r.Version, r.Region, r.LastSeen); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (d *durable) close() error {
	return d.db.Close()
}
