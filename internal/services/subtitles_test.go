package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func wordsFixture() []WordTimestamp {
	return []WordTimestamp{
		{Word: "Stop", Start: 0.0, End: 0.3},
		{Word: "scrolling.", Start: 0.3, End: 0.8},
		{Word: "This", Start: 1.0, End: 1.2},
		{Word: "serum", Start: 1.2, End: 1.6},
		{Word: "changed", Start: 1.6, End: 2.0},
		{Word: "everything", Start: 2.0, End: 2.5},
	}
}

func TestChunkWordsBreaksAtSentenceEnd(t *testing.T) {
	chunks := chunkWords(wordsFixture(), 4)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	// "scrolling." ends a sentence, so the first chunk stops there
	if len(chunks[0]) != 2 {
		t.Errorf("first chunk has %d words, want 2", len(chunks[0]))
	}
	if len(chunks[1]) != 4 {
		t.Errorf("second chunk has %d words, want 4", len(chunks[1]))
	}
}

func TestChunkWordsRespectsChunkSize(t *testing.T) {
	words := make([]WordTimestamp, 9)
	for i := range words {
		words[i] = WordTimestamp{Word: "word", Start: float64(i), End: float64(i) + 0.5}
	}

	chunks := chunkWords(words, 4)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, chunk := range chunks[:2] {
		if len(chunk) != 4 {
			t.Errorf("chunk %d has %d words, want 4", i, len(chunk))
		}
	}
	if len(chunks[2]) != 1 {
		t.Errorf("last chunk has %d words, want 1", len(chunks[2]))
	}
}

func TestBuildHighlightedChunkText(t *testing.T) {
	chunk := []WordTimestamp{
		{Word: "this"},
		{Word: "serum"},
		{Word: "works"},
	}

	text := buildHighlightedChunkText(chunk, 1)

	if !strings.Contains(text, "THIS") || !strings.Contains(text, "WORKS") {
		t.Errorf("words not uppercased: %q", text)
	}
	if !strings.Contains(text, "{\\3c"+assColorYellow) {
		t.Errorf("active word not highlighted: %q", text)
	}
	if !strings.Contains(text, "SERUM{\\r}") {
		t.Errorf("highlight not reset after active word: %q", text)
	}
	if strings.Count(text, "{\\3c") != 1 {
		t.Errorf("exactly one word should be highlighted: %q", text)
	}
}

func TestFormatASSTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00:00.00"},
		{1.5, "0:00:01.50"},
		{61.25, "0:01:01.25"},
		{3661.99, "1:01:01.99"},
		{-5, "0:00:00.00"}, // negatives clamp to zero
	}

	for _, c := range cases {
		if got := formatASSTime(c.seconds); got != c.want {
			t.Errorf("formatASSTime(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestGenerateASSCaptions(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "captions.ass")

	if err := GenerateASSCaptions(wordsFixture(), outputPath); err != nil {
		t.Fatalf("failed to generate captions: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "[Script Info]") || !strings.Contains(content, "[Events]") {
		t.Error("missing required ASS sections")
	}

	// One dialogue line per word: the active highlight moves word by word
	if got := strings.Count(content, "Dialogue:"); got != len(wordsFixture()) {
		t.Errorf("got %d dialogue lines, want %d", got, len(wordsFixture()))
	}

	if !strings.Contains(content, "PlayResX: 1080") || !strings.Contains(content, "PlayResY: 1920") {
		t.Error("canvas dimensions missing from script header")
	}
}

func TestGenerateASSCaptionsEmptyWords(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "captions.ass")
	if err := GenerateASSCaptions(nil, outputPath); err == nil {
		t.Fatal("expected error for empty word list")
	}
}
