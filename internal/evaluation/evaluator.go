package evaluation

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/verdict"
	"github.com/infosage/backend/pkg/logger"
)

// Synthesizer is the verdict source under evaluation.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, research *models.ResearchResult) verdict.Result
}

type Evaluator struct {
	synth Synthesizer
}

type Dataset struct {
	Name  string        `yaml:"name"`
	Items []DatasetItem `yaml:"items"`
}

type DatasetItem struct {
	Text     string         `yaml:"text"`
	Expected models.Verdict `yaml:"expected"`
	Category string         `yaml:"category"`
}

type ItemResult struct {
	Text       string         `json:"text"`
	Expected   models.Verdict `json:"expected"`
	Got        models.Verdict `json:"got"`
	Confidence float64        `json:"confidence"`
	Stage      verdict.Stage  `json:"stage"`
	Correct    bool           `json:"correct"`
}

type Report struct {
	Dataset       string                                    `json:"dataset"`
	Total         int                                       `json:"total"`
	Correct       int                                       `json:"correct"`
	Accuracy      float64                                   `json:"accuracy"`
	AvgConfidence float64                                   `json:"avgConfidence"`
	Confusion     map[models.Verdict]map[models.Verdict]int `json:"confusion"`
	ByStage       map[verdict.Stage]int                     `json:"byStage"`
	ByCategory    map[string]float64                        `json:"byCategory"`
	Items         []ItemResult                              `json:"items"`
}

func NewEvaluator(synth Synthesizer) *Evaluator {
	return &Evaluator{synth: synth}
}

func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes a YAML dataset and rejects items with no text or an
// unknown expected verdict.
func ParseDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := yaml.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}

	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Text) == "" {
			return nil, fmt.Errorf("item %d: text is required", i)
		}
		if _, err := models.ParseVerdict(string(item.Expected)); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return &dataset, nil
}

func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation",
		zap.String("dataset", dataset.Name),
		zap.Int("items", len(dataset.Items)),
	)

	report := &Report{
		Dataset:    dataset.Name,
		Total:      len(dataset.Items),
		Confusion:  make(map[models.Verdict]map[models.Verdict]int),
		ByStage:    make(map[verdict.Stage]int),
		ByCategory: make(map[string]float64),
		Items:      make([]ItemResult, 0, len(dataset.Items)),
	}

	categoryTotal := make(map[string]int)
	categoryCorrect := make(map[string]int)
	var totalConfidence float64

	for _, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := e.synth.Synthesize(ctx, item.Text, nil)
		correct := res.Verdict == item.Expected

		report.Items = append(report.Items, ItemResult{
			Text:       item.Text,
			Expected:   item.Expected,
			Got:        res.Verdict,
			Confidence: res.Confidence,
			Stage:      res.Stage,
			Correct:    correct,
		})

		if report.Confusion[item.Expected] == nil {
			report.Confusion[item.Expected] = make(map[models.Verdict]int)
		}
		report.Confusion[item.Expected][res.Verdict]++
		report.ByStage[res.Stage]++
		totalConfidence += res.Confidence

		category := item.Category
		if category == "" {
			category = "uncategorized"
		}
		categoryTotal[category]++
		if correct {
			report.Correct++
			categoryCorrect[category]++
		}
	}

	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total)
		report.AvgConfidence = totalConfidence / float64(report.Total)
	}
	for category, n := range categoryTotal {
		report.ByCategory[category] = float64(categoryCorrect[category]) / float64(n)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.Total),
		zap.Int("correct", report.Correct),
		zap.Float64("accuracy", report.Accuracy),
	)
	return report, nil
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Evaluation Report
=================

Dataset: %s
Total Claims: %d
Correct: %d (%.1f%%)
Average Confidence: %.2f
`, r.Dataset, r.Total, r.Correct, r.Accuracy*100, r.AvgConfidence)

	b.WriteString("\nConfusion (expected -> got):\n")
	for _, expected := range sortedVerdicts(r.Confusion) {
		row := r.Confusion[expected]
		for _, got := range sortedVerdicts(row) {
			fmt.Fprintf(&b, "- %s -> %s: %d\n", expected, got, row[got])
		}
	}

	if len(r.ByCategory) > 0 {
		b.WriteString("\nAccuracy by category:\n")
		categories := make([]string, 0, len(r.ByCategory))
		for c := range r.ByCategory {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Fprintf(&b, "- %s: %.1f%%\n", c, r.ByCategory[c]*100)
		}
	}
	return b.String()
}

func sortedVerdicts[V any](m map[models.Verdict]V) []models.Verdict {
	keys := make([]models.Verdict, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
