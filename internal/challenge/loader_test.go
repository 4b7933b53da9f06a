package challenge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const samplePack = `topic: Arrays
challenges:
  - title: Two Sum
    difficulty: Easy
    description: Return the sum of two numbers.
    boilerplate: "def two_sum(a, b):\n    pass\n"
    examples:
      - input: "1, 2"
        output: "3"
    hints:
      - Just add them.
    test_cases:
      - input: [1, 2]
        expected: 3
      - input: [-1, 1]
        expected: 0
  - title: Max Element
    difficulty: Medium
    description: Return the largest element.
    test_cases:
      - input: [[3, 1, 2]]
        expected: 3
`

func TestLoadPack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arrays.yaml")
	if err := os.WriteFile(path, []byte(samplePack), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir, nil)
	drafts, err := loader.LoadPack(path)
	if err != nil {
		t.Fatalf("LoadPack() error = %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}
	if drafts[0].Topic != "Arrays" || drafts[0].Title != "Two Sum" {
		t.Errorf("first draft = %+v", drafts[0])
	}
	if len(drafts[0].TestCases) != 2 {
		t.Errorf("got %d test cases, want 2", len(drafts[0].TestCases))
	}
}

func TestLoadAllSeedsStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "arrays.yaml"), []byte(samplePack), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-yaml files are skipped.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a pack"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewService(newMemStore(), nil)
	loader := NewLoader(dir, svc)

	res, err := loader.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if res.Successful != 2 || res.Failed != 0 {
		t.Errorf("result = %+v, want 2 successful", res)
	}

	if _, err := svc.Get(context.Background(), "max-element"); err != nil {
		t.Errorf("seeded challenge missing: %v", err)
	}
}
