package challenge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PackFile is the YAML structure for a challenge pack seed file. Packs
// are plain files, one topic group per file, with test cases inline.
type PackFile struct {
	Topic      string `yaml:"topic"`
	Challenges []struct {
		Title       string   `yaml:"title"`
		Difficulty  string   `yaml:"difficulty"`
		Description string   `yaml:"description"`
		Boilerplate string   `yaml:"boilerplate"`
		Examples    []struct {
			Input  string `yaml:"input"`
			Output string `yaml:"output"`
		} `yaml:"examples"`
		Hints     []string `yaml:"hints"`
		TestCases []struct {
			Input    []any `yaml:"input"`
			Expected any   `yaml:"expected"`
		} `yaml:"test_cases"`
	} `yaml:"challenges"`
}

// Loader seeds the challenge repository from YAML pack files on disk.
type Loader struct {
	basePath string
	service  *Service
}

func NewLoader(basePath string, service *Service) *Loader {
	return &Loader{basePath: basePath, service: service}
}

// LoadPack reads a single pack file and returns the drafts it defines.
func (l *Loader) LoadPack(path string) ([]Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}

	var pack PackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pack file: %w", err)
	}

	drafts := make([]Draft, 0, len(pack.Challenges))
	for _, c := range pack.Challenges {
		draft := Draft{
			Topic:       pack.Topic,
			Title:       c.Title,
			Difficulty:  Difficulty(c.Difficulty),
			Description: c.Description,
			Boilerplate: c.Boilerplate,
			Hints:       c.Hints,
		}
		for _, ex := range c.Examples {
			draft.Examples = append(draft.Examples, Example{Input: ex.Input, Output: ex.Output})
		}
		for _, tc := range c.TestCases {
			draft.TestCases = append(draft.TestCases, TestCase{Input: tc.Input, Expected: tc.Expected})
		}
		drafts = append(drafts, draft)
	}

	return drafts, nil
}

// LoadAll walks the base directory and uploads every pack file found.
// Per-entry failures are collected by the bulk upload, not fatal.
func (l *Loader) LoadAll(ctx context.Context) (*BulkResult, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("read packs directory: %w", err)
	}

	total := &BulkResult{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		drafts, err := l.LoadPack(filepath.Join(l.basePath, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("load pack %s: %w", entry.Name(), err)
		}

		res, err := l.service.BulkUpload(ctx, drafts)
		if err != nil {
			return nil, fmt.Errorf("upload pack %s: %w", entry.Name(), err)
		}
		total.Successful += res.Successful
		total.Failed += res.Failed
		total.Failures = append(total.Failures, res.Failures...)
	}

	return total, nil
}
