// Basic example: start a disposable Postgres container, ingest a few
// support documents and answer a retrieval query with citations. The first
// run downloads the local embedding model into ./models.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	ctxforge "github.com/ctxforge/ctxforge"
	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
)

func main() {
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "postgres",
		Password: "postgres",
		DBName:   "ctxforge_test",
		SSLMode:  "disable",
	}

	engine, err := ctxforge.NewEngine(dbConfig, model.DefaultEngineConfig())
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	documents := []struct {
		sourceType model.SourceType
		localID    string
		text       string
	}{
		{model.SourceTypeTicket, "8841",
			"Customer reports the password reset link in the email expired before they could use it. Resent a fresh reset link and confirmed login works again."},
		{model.SourceTypeArticle, "KB-102",
			"To export invoices, open the billing page, select the date range and click Export. Statements download as CSV or PDF."},
		{model.SourceTypeNote, "N-17",
			"Acme Corp is on the legacy SSO setup; password resets must go through their identity provider, not our reset emails."},
	}

	for _, d := range documents {
		doc, err := model.NewDocument(d.sourceType, d.localID, d.text, model.Metadata{
			CustomerID: "acme",
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			log.Fatalf("Failed to create document: %v", err)
		}
		if err := engine.IngestDocument(ctx, doc); err != nil {
			log.Fatalf("Failed to ingest document %s: %v", doc.ID, err)
		}
	}

	result, err := engine.Retrieve(ctx, model.RetrievalQuery{
		Text: "customer cannot use the password reset link",
		TopK: 3,
	})
	if err != nil {
		log.Fatalf("Failed to retrieve: %v", err)
	}

	fmt.Printf("Context (%d tokens, truncated=%v):\n", result.Context.TotalTokens, result.Context.Truncated)
	for _, passage := range result.Context.Passages {
		fmt.Printf("\n[%s %s]\n%s\n", passage.Citation.SourceType, passage.Citation.DocumentID, passage.Text)
	}

	fmt.Println("\nRanked candidates:")
	for _, candidate := range result.Candidates {
		fmt.Printf("  %d. %s similarity=%.3f score=%.3f\n",
			candidate.FinalRank+1, candidate.ChunkID, candidate.SimilarityScore, candidate.RerankScore)
	}
}
