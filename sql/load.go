package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed meta.sql
var metaSQL string

//go:embed cursors.sql
var cursorsSQL string

// Function lists for verification
var DocumentsFunctions = []string{
	"init_documents",
	"upsert_document",
	"select_document",
	"select_all_documents",
	"delete_document",
}

var ChunksFunctions = []string{
	"init_chunks",
	"upsert_chunk",
	"select_chunk",
	"select_chunks_by_document",
	"delete_chunks_by_document",
	"delete_stale_chunks",
	"select_chunks_by_similarity",
}

var MetaFunctions = []string{
	"init_index_meta",
	"ensure_index_meta",
	"select_index_meta",
}

var CursorsFunctions = []string{
	"init_sync_cursors",
	"upsert_sync_cursor",
	"select_sync_cursor",
}

// Init initializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	return loadFunctions(db, documentsSQL, DocumentsFunctions, "documents", force)
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	return loadFunctions(db, chunksSQL, ChunksFunctions, "chunks", force)
}

// LoadMetaSql loads index meta SQL functions
func LoadMetaSql(db *sql.DB, force bool) error {
	return loadFunctions(db, metaSQL, MetaFunctions, "meta", force)
}

// LoadCursorsSql loads sync cursor SQL functions
func LoadCursorsSql(db *sql.DB, force bool) error {
	return loadFunctions(db, cursorsSQL, CursorsFunctions, "cursors", force)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadMetaSql(db, force); err != nil {
		return err
	}

	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}

	if err := LoadChunksSql(db, force); err != nil {
		return err
	}

	if err := LoadCursorsSql(db, force); err != nil {
		return err
	}

	return nil
}

// loadFunctions executes the SQL file unless all of its functions already
// exist (or force is set) and verifies creation afterwards.
func loadFunctions(db *sql.DB, sqlText string, functions []string, name string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(sqlText)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required %s SQL functions were created", name)
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
