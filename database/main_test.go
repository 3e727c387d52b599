package database

import (
	"context"
	"log"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
	loadSql "github.com/siherrmann/keygrapher/sql"
	"github.com/stretchr/testify/require"
)

var dbPort string

func TestMain(m *testing.M) {
	teardown, port, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}
	dbPort = port

	m.Run()

	if err := teardown(context.Background()); err != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

func initDB(t *testing.T) *helper.Database {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	database := helper.NewTestDatabase(dbConfig)

	err = loadSql.Init(database.Instance)
	require.NoError(t, err)

	return database
}

type handlers struct {
	documents     *DocumentsDBHandler
	tags          *TagsDBHandler
	cooccurrences *CooccurrencesDBHandler
	keywords      *KeywordsDBHandler
}

// initHandlers creates all handlers in dependency order.
func initHandlers(t *testing.T, database *helper.Database) *handlers {
	documents, err := NewDocumentsDBHandler(database, false)
	require.NoError(t, err)
	tags, err := NewTagsDBHandler(database, false)
	require.NoError(t, err)
	cooccurrences, err := NewCooccurrencesDBHandler(database, false)
	require.NoError(t, err)
	keywords, err := NewKeywordsDBHandler(database, false)
	require.NoError(t, err)

	return &handlers{
		documents:     documents,
		tags:          tags,
		cooccurrences: cooccurrences,
		keywords:      keywords,
	}
}

// testLanguage returns a language code unique to one test so tags, which are
// shared across documents, do not leak between tests.
func testLanguage() string {
	return "t" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// annotate builds tagged sentences from "word/POS" lists. Tokens are separated
// by one character, sentences continue the offsets of the previous one.
func annotate(language string, sentences ...string) []*model.Sentence {
	var result []*model.Sentence
	offset := 0
	for i, s := range sentences {
		sentence := &model.Sentence{Index: i}
		var words []string
		for j, field := range strings.Fields(s) {
			word, pos, _ := strings.Cut(field, "/")
			words = append(words, word)
			sentence.Tokens = append(sentence.Tokens, &model.TaggedToken{
				Text:               word,
				Language:           language,
				POSTags:            []string{pos},
				StartOffset:        offset,
				EndOffset:          offset + len(word),
				SentenceIndex:      i,
				SentenceOrderIndex: j,
			})
			offset += len(word) + 1
		}
		sentence.Text = strings.Join(words, " ")
		result = append(result, sentence)
	}
	return result
}

// insertAnnotatedDocument stores a document with its sentences.
func insertAnnotatedDocument(t *testing.T, h *handlers, language string, sentences ...string) *model.Document {
	ctx := context.Background()
	doc := &model.Document{
		Title:    "Annotated " + language,
		Language: language,
		Metadata: model.Metadata{},
	}
	require.NoError(t, h.documents.InsertDocument(ctx, doc))
	require.NoError(t, h.tags.InsertAnnotatedText(ctx, doc.RID, annotate(language, sentences...)))

	t.Cleanup(func() {
		h.documents.DeleteDocument(context.Background(), doc.RID)
	})

	return doc
}
