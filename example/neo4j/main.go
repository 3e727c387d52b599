package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/siherrmann/keygrapher"
	"github.com/siherrmann/keygrapher/database/neo4jdb"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
)

const sampleTagged = `Climate/NN change/NN threatens/VBZ coastal/JJ cities/NNS ./.
Rising/VBG sea/NN levels/NNS flood/VBP coastal/JJ cities/NNS ./.
Climate/NN change/NN drives/VBZ global/JJ migration/NN ./.`

func main() {
	// Start a test Neo4j container
	teardown, boltURL, err := helper.MustStartNeo4jContainer()
	if err != nil {
		log.Fatalf("Failed to start Neo4j container: %v", err)
	}
	defer teardown(context.Background())

	config := &neo4jdb.Config{
		URI:         boltURL,
		User:        "neo4j",
		Password:    "password",
		MaxPoolSize: 10,
	}

	k, err := keygrapher.NewKeyGrapherWithNeo4j(config)
	if err != nil {
		log.Fatalf("Failed to create keygrapher: %v", err)
	}
	defer k.Close()

	ctx := context.Background()

	doc := &model.Document{
		Title:    "Climate Report",
		Source:   "neo4j_example",
		Language: "en",
	}
	if err := k.InsertAnnotatedDocument(ctx, doc, parseTagged(sampleTagged, doc.Language)); err != nil {
		log.Fatalf("Failed to insert document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)

	result, err := k.Extract(ctx, doc.RID, nil)
	if err != nil {
		log.Fatalf("Failed to extract keywords: %v", err)
	}

	fmt.Printf("\nFound %d keywords:\n", len(result.Candidates))
	for _, c := range result.Candidates {
		fmt.Printf("  %-30s count=%d\n", c.DisplayValue, c.OccurrenceCount)
	}

	edges, err := k.Cooccurrences.SelectCooccurrencesByDocument(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField)
	if err != nil {
		log.Fatalf("Failed to select cooccurrences: %v", err)
	}
	fmt.Printf("\nCo-occurrence graph (%d edges):\n", len(edges))
	for _, e := range edges {
		fmt.Printf("  %s -[%d]- %s\n", e.A.Value, e.Weight, e.B.Value)
	}
}

// parseTagged turns "word/POS" lines into sentences with document offsets.
func parseTagged(text string, language string) []*model.Sentence {
	var sentences []*model.Sentence
	offset := 0
	for i, line := range strings.Split(text, "\n") {
		sentence := &model.Sentence{Index: i}
		for j, field := range strings.Fields(line) {
			sep := strings.LastIndex(field, "/")
			word, pos := field[:sep], field[sep+1:]
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
		sentence.Text = line
		sentences = append(sentences, sentence)
	}
	return sentences
}
