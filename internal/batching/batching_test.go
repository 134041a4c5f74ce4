package batching

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestPeek_SingleObjectIsNotABatch(t *testing.T) {
	isBatch, replay, err := Peek(strings.NewReader(`{"query":"{ foo }"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isBatch {
		t.Error("expected a single object not to be classified as a batch")
	}
	rest, err := io.ReadAll(replay)
	if err != nil {
		t.Fatalf("unexpected error reading replay: %v", err)
	}
	if string(rest) != `{"query":"{ foo }"}` {
		t.Errorf("expected replay to preserve the original bytes, got %q", rest)
	}
}

func TestPeek_LeadingWhitespaceThenArrayIsABatch(t *testing.T) {
	isBatch, replay, err := Peek(strings.NewReader("  \n[{\"query\":\"{ foo }\"}]"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isBatch {
		t.Error("expected a leading-whitespace array to be classified as a batch")
	}
	rest, err := io.ReadAll(replay)
	if err != nil {
		t.Fatalf("unexpected error reading replay: %v", err)
	}
	if string(rest) != `[{"query":"{ foo }"}]` {
		t.Errorf("expected replay to preserve the array bytes after discarding whitespace, got %q", rest)
	}
}

func TestPeek_EmptyBodyIsNotABatch(t *testing.T) {
	isBatch, _, err := Peek(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isBatch {
		t.Error("expected an empty body not to be classified as a batch")
	}
}

func TestSplitArray_SplitsTopLevelObjects(t *testing.T) {
	raw := []byte(`[{"query":"{ a }"}, {"query":"{ b(s:\"]\") }"}]`)
	parts, err := SplitArray(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 elements, got %d: %q", len(parts), parts)
	}
	if !bytes.Equal(parts[0], []byte(`{"query":"{ a }"}`)) {
		t.Errorf("unexpected first element: %q", parts[0])
	}
	if !bytes.Equal(parts[1], []byte(`{"query":"{ b(s:\"]\") }"}`)) {
		t.Errorf("unexpected second element: %q", parts[1])
	}
}

func TestSplitArray_RejectsNonArray(t *testing.T) {
	if _, err := SplitArray([]byte(`{"query":"{ a }"}`)); err == nil {
		t.Error("expected an error for a non-array input")
	}
}
