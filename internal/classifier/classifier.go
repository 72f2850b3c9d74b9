// Package classifier assigns cuisine categories to canonical entities.
// A keyword pre-pass resolves most names locally; the remainder goes to
// the LLM in small batches. Classification failures are never fatal:
// unresolved entities keep their placeholder category.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
	"github.com/shiok-scout/gems-cli/pkg/anthropic"
)

const (
	sourceKeyword = "keyword"
	sourceLLM     = "llm"
)

const systemPrompt = `You are a cuisine classifier for Singapore restaurants.
Classify each restaurant into ONE of these categories:
%s

Rules:
- Respond with ONLY the restaurant name and category, one per line, format: "Name | Category"
- If you cannot determine the cuisine, use "Other"
- "Western" includes American, British, European, fusion restaurants
- "Hawker" is for food courts, hawker centers, eating houses
- "Cafe" is for coffee shops, bakeries, dessert places`

// gate paces LLM calls. *rate.Limiter satisfies it; tests substitute a
// counting stub.
type gate interface {
	Wait(ctx context.Context) error
}

// Classifier resolves cuisine categories for entities whose source
// category is the unknown placeholder.
type Classifier struct {
	llm      anthropic.Client
	cfg      config.ClassifierConfig
	model    string
	maxTok   int64
	keywords *keywordTable
	gate     gate
}

// New creates a Classifier. llm may be nil, in which case only the
// keyword pass runs.
func New(llm anthropic.Client, cfg config.ClassifierConfig, anthropicCfg config.AnthropicConfig) (*Classifier, error) {
	table, err := loadKeywordTable()
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		llm:      llm,
		cfg:      cfg,
		model:    anthropicCfg.Model,
		maxTok:   anthropicCfg.MaxTokens,
		keywords: table,
	}
	if cfg.InterCallDelay > 0 {
		// Burst 1 lets the first call through untouched and spaces the rest.
		c.gate = rate.NewLimiter(rate.Every(cfg.InterCallDelay), 1)
	}
	return c, nil
}

// Classify returns a verdict per entity that needs one. Entities already
// carrying a known category are passed through untouched. The result
// always covers every input entity; Resolved=false means the category
// stays the placeholder.
func (c *Classifier) Classify(ctx context.Context, entities []model.CanonicalEntity) []model.ClassificationResult {
	log := zap.L().With(zap.String("component", "classifier"))

	results := make([]model.ClassificationResult, len(entities))
	var pending []int // indexes still unresolved after the keyword pass

	for i, e := range entities {
		// Source categories are raw types like "chinese_restaurant"; only a
		// category already in the vocabulary passes through untouched.
		if e.Category != model.CategoryUnknown && c.inVocabulary(e.Category) {
			results[i] = model.ClassificationResult{Key: e.Key, Category: e.Category, Resolved: true, Source: sourceKeyword}
			continue
		}
		if cat := c.keywords.deduce(e.DisplayName); cat != "" {
			results[i] = model.ClassificationResult{Key: e.Key, Category: cat, Resolved: true, Source: sourceKeyword}
			continue
		}
		results[i] = model.ClassificationResult{Key: e.Key, Category: model.CategoryUnknown}
		pending = append(pending, i)
	}

	log.Info("keyword pass done",
		zap.Int("total", len(entities)),
		zap.Int("unresolved", len(pending)),
	)

	if c.llm == nil || len(pending) == 0 {
		return results
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]

		if c.gate != nil {
			if err := c.gate.Wait(ctx); err != nil {
				log.Warn("classification cut short", zap.Error(err))
				return results
			}
		}

		verdicts, err := c.classifyBatch(ctx, entities, batch)
		if err != nil {
			// Batch failure leaves its entities unresolved and moves on.
			log.Warn("batch classification failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return results
			}
			continue
		}

		for idx, category := range verdicts {
			results[idx] = model.ClassificationResult{
				Key:      entities[idx].Key,
				Category: category,
				Resolved: true,
				Source:   sourceLLM,
			}
		}
	}

	resolved := 0
	for _, r := range results {
		if r.Resolved {
			resolved++
		}
	}
	log.Info("classification done",
		zap.Int("total", len(entities)),
		zap.Int("resolved", resolved),
	)
	return results
}

// classifyBatch sends one batch of names and maps verdicts back to entity
// indexes. The response is matched by name, not position, because the
// model may reorder, drop, or rename lines.
func (c *Classifier) classifyBatch(ctx context.Context, entities []model.CanonicalEntity, batch []int) (map[int]string, error) {
	var sb strings.Builder
	sb.WriteString("Restaurant names:\n")
	for _, idx := range batch {
		sb.WriteString("- ")
		sb.WriteString(entities[idx].DisplayName)
		sb.WriteString("\n")
	}
	sb.WriteString("\nClassifications:")

	resp, err := c.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTok,
		System:    fmt.Sprintf(systemPrompt, strings.Join(c.cfg.Labels, ", ")),
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(c.model, "classify")

	verdicts := make(map[int]string)
	for _, line := range strings.Split(resp.Text(), "\n") {
		name, category, ok := parseLine(line)
		if !ok {
			continue
		}
		category = c.normalizeLabel(category)

		if idx, ok := matchName(entities, batch, name); ok {
			if _, taken := verdicts[idx]; !taken {
				verdicts[idx] = category
			}
		}
	}
	return verdicts, nil
}

// parseLine splits a "Name | Category" response line.
func parseLine(line string) (name, category string, ok bool) {
	if !strings.Contains(line, "|") {
		return "", "", false
	}
	parts := strings.SplitN(line, "|", 2)
	name = strings.TrimLeft(strings.TrimSpace(parts[0]), "- ")
	category = strings.TrimSpace(parts[1])
	if name == "" || category == "" {
		return "", "", false
	}
	return name, category, true
}

func (c *Classifier) inVocabulary(category string) bool {
	for _, label := range c.cfg.Labels {
		if strings.EqualFold(category, label) {
			return true
		}
	}
	return false
}

// normalizeLabel coerces a free-form model answer into the vocabulary.
// Unknown answers fall back to the placeholder rather than polluting the
// category set.
func (c *Classifier) normalizeLabel(category string) string {
	for _, label := range c.cfg.Labels {
		if strings.EqualFold(category, label) {
			return label
		}
	}
	lower := strings.ToLower(category)
	for _, label := range c.cfg.Labels {
		if strings.Contains(lower, strings.ToLower(label)) {
			return label
		}
	}
	return model.CategoryUnknown
}

// matchName finds which batch entity a response name refers to. Matching
// is fuzzy: models sometimes truncate or transliterate names, so a
// 20-char prefix match or containment either way counts.
func matchName(entities []model.CanonicalEntity, batch []int, name string) (int, bool) {
	lower := strings.ToLower(name)
	prefix := lower
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	for _, idx := range batch {
		orig := strings.ToLower(entities[idx].DisplayName)
		if strings.HasPrefix(orig, prefix) || strings.Contains(orig, lower) || strings.Contains(lower, orig) {
			return idx, true
		}
	}
	return 0, false
}

// Apply copies resolved verdicts back onto the entities by position.
func Apply(entities []model.CanonicalEntity, results []model.ClassificationResult) {
	for i := range entities {
		if i < len(results) && results[i].Resolved {
			entities[i].Category = results[i].Category
		} else {
			entities[i].Category = model.CategoryUnknown
		}
	}
}
