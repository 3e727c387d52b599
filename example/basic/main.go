package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/siherrmann/keygrapher"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
)

// Output of the upstream tagger, one sentence per line.
const sampleTagged = `Graph/NN databases/NNS store/VBP highly/RB connected/JJ data/NNS ./.
Graph/NN databases/NNS use/VBP nodes/NNS and/CC relationships/NNS ./.
Keyword/NN extraction/NN ranks/VBZ words/NNS on/IN a/DT co-occurrence/NN graph/NN ./.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	k, err := keygrapher.NewKeyGrapher(dbConfig)
	if err != nil {
		log.Fatalf("Failed to create keygrapher: %v", err)
	}
	defer k.Close()

	ctx := context.Background()

	doc := &model.Document{
		Title:    "Introduction to Graph Databases",
		Source:   "basic_example",
		Language: "en",
		Metadata: model.Metadata{
			"author": "Example Author",
		},
	}

	fmt.Println("Ingesting document...")
	if err := k.InsertAnnotatedDocument(ctx, doc, parseTagged(sampleTagged, doc.Language)); err != nil {
		log.Fatalf("Failed to insert document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)

	// Build the graph, rank it and persist the keywords in one call
	result, err := k.Extract(ctx, doc.RID, nil)
	if err != nil {
		log.Fatalf("Failed to extract keywords: %v", err)
	}

	fmt.Printf("\nFound %d keywords:\n", len(result.Candidates))
	for _, c := range result.Candidates {
		fmt.Printf("  %-30s count=%d\n", c.DisplayValue, c.OccurrenceCount)
	}

	keywords, err := k.Keywords.SelectKeywordsByDocument(ctx, doc.RID)
	if err != nil {
		log.Fatalf("Failed to select keywords: %v", err)
	}
	fmt.Printf("\n%d keyword associations stored\n", len(keywords))
}

// parseTagged turns "word/POS" lines into sentences with document offsets.
func parseTagged(text string, language string) []*model.Sentence {
	var sentences []*model.Sentence
	offset := 0
	for i, line := range strings.Split(text, "\n") {
		sentence := &model.Sentence{Index: i}
		var words []string
		for j, field := range strings.Fields(line) {
			sep := strings.LastIndex(field, "/")
			word, pos := field[:sep], field[sep+1:]
			words = append(words, word)
			sentence.Tokens = append(sentence.Tokens, &model.TaggedToken{
				Text:               strings.ToLower(word),
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
		sentences = append(sentences, sentence)
	}
	return sentences
}
