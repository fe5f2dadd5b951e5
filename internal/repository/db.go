package repository

import (
	"context"
	"database/sql"
	"log"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
)

// DB はX-Rayのサブセグメントを付与するsqlx.DBのラッパーです
type DB struct {
	*sqlx.DB
}

// NewDB は接続済みのsqlx.DBからDBを作成します
func NewDB(conn *sqlx.DB) *DB {
	return &DB{DB: conn}
}

// SelectContext wraps sqlx.DB.SelectContext with X-Ray tracing
func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.Select")
	if seg == nil {
		return db.DB.SelectContext(ctx, dest, query, args...)
	}
	defer seg.Close(nil)

	// クエリをメタデータとして追加
	if err := seg.AddMetadata("query", query); err != nil {
		log.Printf("Failed to add query metadata: %v", err)
	}

	if err := db.DB.SelectContext(ctx, dest, query, args...); err != nil {
		seg.Close(err)
		return err
	}
	return nil
}

// GetContext wraps sqlx.DB.GetContext with X-Ray tracing
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.Get")
	if seg == nil {
		return db.DB.GetContext(ctx, dest, query, args...)
	}
	defer seg.Close(nil)

	if err := seg.AddMetadata("query", query); err != nil {
		log.Printf("Failed to add query metadata: %v", err)
	}

	if err := db.DB.GetContext(ctx, dest, query, args...); err != nil {
		// 行が無いのは呼び出し側で扱うためエラーとして記録しない
		if err != sql.ErrNoRows {
			seg.Close(err)
		}
		return err
	}
	return nil
}

// ExecContext wraps sqlx.DB.ExecContext with X-Ray tracing
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.Exec")
	if seg == nil {
		return db.DB.ExecContext(ctx, query, args...)
	}
	defer seg.Close(nil)

	if err := seg.AddMetadata("query", query); err != nil {
		log.Printf("Failed to add query metadata: %v", err)
	}

	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	return result, nil
}

// NamedQueryRowContext は名前付きパラメータのクエリを実行し、1行目を dest に読み込みます
func (db *DB) NamedQueryRowContext(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.NamedQueryRow")
	if seg != nil {
		defer seg.Close(nil)
		if err := seg.AddMetadata("query", query); err != nil {
			log.Printf("Failed to add query metadata: %v", err)
		}
	}

	rows, err := db.DB.NamedQueryContext(ctx, query, arg)
	if err != nil {
		if seg != nil {
			seg.Close(err)
		}
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if seg != nil {
				seg.Close(err)
			}
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest); err != nil {
		if seg != nil {
			seg.Close(err)
		}
		return err
	}
	return nil
}
