//go:build ignore

// Package main generates a synthetic BEIR-style contract clause corpus for
// benchmarking index builds and searches.
// Usage: go run scripts/generate-test-corpus.go -docs 5000 -queries 200 -output testdata/bench
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var (
	numDocs    = flag.Int("docs", 5000, "Number of clauses to generate")
	numQueries = flag.Int("queries", 200, "Number of judged queries to generate")
	outputDir  = flag.String("output", "testdata/bench", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// clauseFamily is one kind of clause with its phrasing variants and the
// query a lawyer would type to find it.
type clauseFamily struct {
	kind     string
	query    string
	variants []string
}

var families = []clauseFamily{
	{"governing_law", "governing law %s", []string{
		"This Agreement shall be governed by and construed in accordance with the laws of %s.",
		"The laws of %s govern this Agreement without regard to conflict of laws principles.",
	}},
	{"limitation_of_liability", "limitation of liability cap", []string{
		"Neither party shall be liable for indirect, incidental or consequential damages arising in %s.",
		"In no event shall aggregate liability exceed the fees paid in the twelve months preceding the claim in %s.",
	}},
	{"termination", "termination for convenience notice", []string{
		"Either party may terminate this Agreement for convenience upon thirty days written notice, subject to %s law.",
		"This Agreement may be terminated at any time by mutual consent of the parties in %s.",
	}},
	{"renewal", "automatic renewal term", []string{
		"This Agreement renews automatically for successive one year terms unless terminated; renewals are governed by %s law.",
		"Unless either party gives notice of non-renewal, the term shall extend automatically under the laws of %s.",
	}},
	{"force_majeure", "force majeure act of god", []string{
		"Neither party is responsible for delays caused by force majeure events including acts of God, governed by %s law.",
		"Performance is excused during any force majeure event beyond the reasonable control of the affected party in %s.",
	}},
	{"confidentiality", "confidential information disclosure", []string{
		"Each party shall hold the other party's confidential information in strict confidence under the laws of %s.",
		"Confidential information may not be disclosed to third parties without prior written consent, enforceable in %s.",
	}},
}

var (
	jurisdictions  = []string{"New York", "Delaware", "California", "England", "Ontario", "Singapore"}
	businessUnits  = []string{"Procurement", "Sales", "Legal", "Engineering"}
	counterparties = []string{"Acme Corp", "Globex", "Initech", "Umbrella", "Hooli"}
)

type corpusLine struct {
	ID           string `json:"_id"`
	Title        string `json:"title"`
	Text         string `json:"text"`
	Type         string `json:"type"`
	BusinessUnit string `json:"business_unit"`
	Jurisdiction string `json:"jurisdiction"`
	Counterparty string `json:"counterparty"`
	Date         string `json:"date"`
}

type queryLine struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Join(*outputDir, "qrels"), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d clauses and %d queries in %s (seed=%d)\n", *numDocs, *numQueries, *outputDir, *seed)

	docs := make([]corpusLine, 0, *numDocs)
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < *numDocs; i++ {
		fam := families[rng.Intn(len(families))]
		juris := pick(rng, jurisdictions)
		docs = append(docs, corpusLine{
			ID:           fmt.Sprintf("C%06d", i),
			Title:        fmt.Sprintf("%s clause %d", fam.kind, i),
			Text:         fmt.Sprintf(pick(rng, fam.variants), juris),
			Type:         fam.kind,
			BusinessUnit: pick(rng, businessUnits),
			Jurisdiction: juris,
			Counterparty: pick(rng, counterparties),
			Date:         start.AddDate(0, 0, rng.Intn(3650)).Format("2006-01-02"),
		})
	}
	if err := writeJSONL(filepath.Join(*outputDir, "corpus.jsonl"), docs); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing corpus: %v\n", err)
		os.Exit(1)
	}

	queries := make([]queryLine, 0, *numQueries)
	qrels, err := os.Create(filepath.Join(*outputDir, "qrels", "test.tsv"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating qrels: %v\n", err)
		os.Exit(1)
	}
	defer qrels.Close()
	fmt.Fprintln(qrels, "query-id\tcorpus-id\tscore")

	for i := 0; i < *numQueries; i++ {
		fam := families[rng.Intn(len(families))]
		juris := pick(rng, jurisdictions)
		qid := fmt.Sprintf("Q%04d", i)
		text := fam.query
		if fam.kind == "governing_law" {
			text = fmt.Sprintf(fam.query, juris)
		}
		queries = append(queries, queryLine{ID: qid, Text: text})

		// Same family is relevant; same family in the named jurisdiction is highly relevant.
		for _, d := range docs {
			if d.Type != fam.kind {
				continue
			}
			grade := 1
			if d.Jurisdiction == juris {
				grade = 2
			}
			fmt.Fprintf(qrels, "%s\t%s\t%d\n", qid, d.ID, grade)
		}
	}
	if err := writeJSONL(filepath.Join(*outputDir, "queries.jsonl"), queries); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing queries: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d clauses and %d queries successfully.\n", len(docs), len(queries))
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func writeJSONL[T any](path string, lines []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
