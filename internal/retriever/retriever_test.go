package retriever

import "testing"

func TestRerankAnchorBoostCappedPerFile(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", FilePath: "a.go", VectorScore: 0.90},
		{ID: "2", FilePath: "b.go", VectorScore: 0.85},
		{ID: "3", FilePath: "c.go", VectorScore: 0.80},
		{ID: "4", FilePath: "a.go", VectorScore: 0.50},
		{ID: "5", FilePath: "a.go", VectorScore: 0.40},
		{ID: "6", FilePath: "a.go", VectorScore: 0.30},
		{ID: "7", FilePath: "z.go", VectorScore: 0.60},
	}

	ranked := rerank(candidates, 10)

	byID := make(map[string]RetrievedChunk)
	for _, r := range ranked {
		byID[r.Candidate.ID] = r
	}

	if byID["1"].ProximityBoost != 0.08 {
		t.Fatalf("expected anchor chunk 1 boosted 0.08, got %v", byID["1"].ProximityBoost)
	}
	if byID["4"].ProximityBoost != 0.08 {
		t.Fatalf("expected second a.go chunk boosted 0.08, got %v", byID["4"].ProximityBoost)
	}
	if byID["5"].ProximityBoost != 0 {
		t.Fatalf("expected third a.go chunk capped at 0 additional boost, got %v", byID["5"].ProximityBoost)
	}
	if byID["6"].ProximityBoost != 0 {
		t.Fatalf("expected fourth a.go chunk capped at 0 additional boost, got %v", byID["6"].ProximityBoost)
	}
	if byID["7"].ProximityBoost != 0 {
		t.Fatalf("expected non-anchor file to get no boost, got %v", byID["7"].ProximityBoost)
	}
}

func TestRerankOrdersByFinalScoreThenVectorScoreThenOriginalOrder(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", FilePath: "a.go", VectorScore: 0.70},
		{ID: "2", FilePath: "a.go", VectorScore: 0.70},
		{ID: "3", FilePath: "b.go", VectorScore: 0.69},
	}
	ranked := rerank(candidates, 10)
	if ranked[0].Candidate.ID != "1" || ranked[1].Candidate.ID != "2" {
		t.Fatalf("expected stable tie order 1 then 2, got %s then %s", ranked[0].Candidate.ID, ranked[1].Candidate.ID)
	}
}

func TestRerankReturnsTopK(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 20; i++ {
		candidates = append(candidates, Candidate{ID: string(rune('a' + i)), FilePath: "x.go", VectorScore: float64(20-i) / 20})
	}
	ranked := rerank(candidates, 5)
	if len(ranked) != 5 {
		t.Fatalf("expected topK=5 results, got %d", len(ranked))
	}
}

func TestRerankEmptyInput(t *testing.T) {
	if ranked := rerank(nil, 5); ranked != nil {
		t.Fatalf("expected nil for empty candidates, got %v", ranked)
	}
}
