package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/keygrapher"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
)

const sampleTagged1 = `Graph/NN databases/NNS store/VBP highly/RB connected/JJ data/NNS ./.
Large/JJ graph/NN databases/NNS scale/VBP across/IN many/JJ machines/NNS ./.
Graph/NN databases/NNS use/VBP nodes/NNS and/CC relationships/NNS ./.`

const sampleTagged2 = `Machine/NN learning/NN transforms/VBZ information/NN retrieval/NN ./.
Vector/NN embeddings/NNS capture/VBP semantic/JJ meaning/NN ./.
Modern/JJ retrieval/NN systems/NNS combine/VBP machine/NN learning/NN and/CC indexing/NN ./.`

// Extraction settings as they would be read from a config file.
const extractionConfig = `
relation_kind: CO_OCCURRENCE
weight_field: weight
iterations: 50
damping_factor: 0.85
stopwords: [large, many, modern]
association_mode: upsert
`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
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

	cfg, err := model.ParseExtractionConfig([]byte(extractionConfig))
	if err != nil {
		log.Fatalf("Failed to parse extraction config: %v", err)
	}

	ctx := context.Background()

	fmt.Println("=== Ingesting Documents ===")
	var rids []uuid.UUID
	for i, tagged := range []string{sampleTagged1, sampleTagged2} {
		doc := &model.Document{
			Title:    fmt.Sprintf("Document %d", i+1),
			Source:   "advanced_example",
			Language: "en",
		}
		if err := k.InsertAnnotatedDocument(ctx, doc, parseTagged(tagged, doc.Language)); err != nil {
			log.Fatalf("Failed to insert document %d: %v", i+1, err)
		}
		fmt.Printf("Document %d (RID: %s)\n", i+1, doc.RID)
		rids = append(rids, doc.RID)
	}
	// Unknown documents fail on their own without stopping the batch
	rids = append(rids, uuid.New())

	fmt.Println("\n=== 1. Batch Extraction ===")
	for _, r := range k.ExtractBatch(ctx, rids, cfg, 2) {
		if r.Err != nil {
			fmt.Printf("%s: error: %v\n", r.DocumentRID, r.Err)
			continue
		}
		fmt.Printf("%s:\n", r.DocumentRID)
		for _, c := range r.Result.Candidates {
			fmt.Printf("  %-30s count=%d\n", c.DisplayValue, c.OccurrenceCount)
		}
	}

	fmt.Println("\n=== 2. Ranking Only ===")
	ranked, err := k.Rank(ctx, rids[0], cfg.RelationKind, cfg.WeightField, cfg.Iterations, cfg.DampingFactor)
	if err != nil {
		log.Fatalf("Failed to rank document: %v", err)
	}
	for i, node := range ranked {
		fmt.Printf("%2d. %-20s score=%.4f degree=%.0f\n", i+1, node.Identity.Value, node.Score, node.AuxWeight)
	}

	fmt.Println("\n=== 3. Re-extraction Updates Counts ===")
	if _, err := k.Extract(ctx, rids[0], cfg); err != nil {
		log.Fatalf("Failed to extract keywords: %v", err)
	}
	keywords, err := k.Keywords.SelectKeywordsByDocument(ctx, rids[0])
	if err != nil {
		log.Fatalf("Failed to select keywords: %v", err)
	}
	for _, kw := range keywords {
		fmt.Printf("  %-30s count=%d stopwords=%t\n", kw.Keyword.Value, kw.Count, kw.StopwordsApplied)
	}
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
