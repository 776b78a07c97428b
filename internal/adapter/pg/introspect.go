package pg

import (
	"context"

	"querypilot/internal/adapter"
	perr "querypilot/internal/platform/errors"
)

const (
	qTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	qColumns = `
		SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`

	qPrimaryKeys = `
		SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public' AND tc.constraint_type = 'PRIMARY KEY'`

	qForeignKeys = `
		SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public' AND tc.constraint_type = 'FOREIGN KEY'`
)

// introspect reads tables, columns, keys and row counts from the public
// schema. A failing per-table count degrades that table to row_count=0
// instead of failing the whole pass
func (a *Adapter) introspect(ctx context.Context) (*adapter.Database, error) {
	pool := a.getPool()

	rows, err := pool.Query(ctx, qTables)
	if err != nil {
		return nil, perr.FromPostgres(err, "list tables")
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, perr.FromPostgres(err, "scan table name")
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "list tables")
	}

	pks, err := a.primaryKeys(ctx)
	if err != nil {
		return nil, err
	}

	db := &adapter.Database{Name: a.name, Kind: adapter.KindRelational}
	for _, name := range names {
		tbl := adapter.Table{Name: name}

		crows, err := pool.Query(ctx, qColumns, name)
		if err != nil {
			return nil, perr.FromPostgres(err, "list columns")
		}
		for crows.Next() {
			var col adapter.Column
			var nullable string
			if err := crows.Scan(&col.Name, &col.Type, &nullable, &col.Default); err != nil {
				crows.Close()
				return nil, perr.FromPostgres(err, "scan column")
			}
			col.Nullable = nullable == "YES"
			col.PrimaryKey = pks[name][col.Name]
			tbl.Columns = append(tbl.Columns, col)
		}
		crows.Close()
		if err := crows.Err(); err != nil {
			return nil, perr.FromPostgres(err, "list columns")
		}

		// counts are best effort
		var count int64
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(name)).Scan(&count); err != nil {
			if perr.IsConnectionLost(err) {
				return nil, perr.FromPostgres(err, "count rows")
			}
			a.log.Warn().Str("database", a.name).Str("table", name).Err(err).Msg("row count failed")
			count = 0
		}
		tbl.RowCount = count

		db.Tables = append(db.Tables, tbl)
	}

	rels, err := a.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}
	db.Relationships = rels
	return db, nil
}

func (a *Adapter) primaryKeys(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := a.getPool().Query(ctx, qPrimaryKeys)
	if err != nil {
		return nil, perr.FromPostgres(err, "list primary keys")
	}
	defer rows.Close()

	out := map[string]map[string]bool{}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, perr.FromPostgres(err, "scan primary key")
		}
		if out[table] == nil {
			out[table] = map[string]bool{}
		}
		out[table][column] = true
	}
	return out, rows.Err()
}

func (a *Adapter) foreignKeys(ctx context.Context) ([]adapter.Relationship, error) {
	rows, err := a.getPool().Query(ctx, qForeignKeys)
	if err != nil {
		return nil, perr.FromPostgres(err, "list foreign keys")
	}
	defer rows.Close()

	var out []adapter.Relationship
	for rows.Next() {
		var r adapter.Relationship
		if err := rows.Scan(&r.Table, &r.Column, &r.RefTable, &r.RefColumn); err != nil {
			return nil, perr.FromPostgres(err, "scan foreign key")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
