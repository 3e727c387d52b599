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

//go:embed tags.sql
var tagsSQL string

//go:embed cooccurrences.sql
var cooccurrencesSQL string

//go:embed keywords.sql
var keywordsSQL string

// Function lists for verification
var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_document_id",
	"select_all_documents",
	"update_document",
	"delete_document",
}

var TagsFunctions = []string{
	"init_tags",
	"insert_sentence",
	"insert_tag_occurrence",
	"select_tagged_tokens",
	"select_spans",
}

var CooccurrencesFunctions = []string{
	"init_cooccurrences",
	"upsert_cooccurrence",
	"select_cooccurrence",
	"select_cooccurrences_by_document",
	"delete_cooccurrences_by_document",
}

var KeywordsFunctions = []string{
	"init_keywords",
	"find_or_create_keyword",
	"select_keyword",
	"insert_keyword_document",
	"upsert_keyword_document",
	"select_keywords_by_document",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	return loadSql(db, "documents", documentsSQL, DocumentsFunctions, force)
}

// LoadTagsSql loads sentence, tag and tag occurrence SQL functions
func LoadTagsSql(db *sql.DB, force bool) error {
	return loadSql(db, "tags", tagsSQL, TagsFunctions, force)
}

// LoadCooccurrencesSql loads co-occurrence edge SQL functions
func LoadCooccurrencesSql(db *sql.DB, force bool) error {
	return loadSql(db, "cooccurrences", cooccurrencesSQL, CooccurrencesFunctions, force)
}

// LoadKeywordsSql loads keyword SQL functions
func LoadKeywordsSql(db *sql.DB, force bool) error {
	return loadSql(db, "keywords", keywordsSQL, KeywordsFunctions, force)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}

	if err := LoadTagsSql(db, force); err != nil {
		return err
	}

	if err := LoadCooccurrencesSql(db, force); err != nil {
		return err
	}

	if err := LoadKeywordsSql(db, force); err != nil {
		return err
	}

	return nil
}

// loadSql executes script unless all functions already exist. With force it
// always executes and afterwards verifies that every function was created.
func loadSql(db *sql.DB, name string, script string, functions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
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
