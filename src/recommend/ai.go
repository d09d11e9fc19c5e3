package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
)

// Advisor is the AI side of scoring and pricing
type Advisor interface {
	ScoreItems(ctx context.Context, p Profile, items []catalog.Item) (map[string]float64, error)
	AdvisePrice(ctx context.Context, it catalog.Item, heuristic pricing.Suggestion) (PriceRange, error)
	Name() string
}

// GenAIAdvisor asks a Gemini model for JSON scores and price advice
type GenAIAdvisor struct {
	client *genai.Client
	model  string
}

func NewGenAIAdvisor(ctx context.Context, apiKey, model string) (*GenAIAdvisor, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GenAI client")
	}
	return &GenAIAdvisor{client: client, model: model}, nil
}

func (g *GenAIAdvisor) Name() string {
	return "genai:" + g.model
}

func (g *GenAIAdvisor) generate(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0.2)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	})
	if err != nil {
		return "", errors.Wrap(err, "GenAI generate failed")
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func (g *GenAIAdvisor) ScoreItems(ctx context.Context, p Profile, items []catalog.Item) (map[string]float64, error) {
	text, err := g.generate(ctx, scorePrompt(p, items))
	if err != nil {
		return nil, err
	}
	return parseScores(text, items)
}

func (g *GenAIAdvisor) AdvisePrice(ctx context.Context, it catalog.Item, heuristic pricing.Suggestion) (PriceRange, error) {
	text, err := g.generate(ctx, pricePrompt(it, heuristic))
	if err != nil {
		return PriceRange{}, err
	}
	return parsePriceAdvice(text)
}

type promptItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Dosha       []string `json:"dosha,omitempty"`
	Dietary     []string `json:"dietary,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func scorePrompt(p Profile, items []catalog.Item) string {
	list := make([]promptItem, 0, len(items))
	for _, it := range items {
		list = append(list, promptItem{it.ID, it.Name, it.Description, it.DoshaTags, it.DietaryTags, it.Tags})
	}
	itemsJSON, _ := json.Marshal(list)
	profileJSON, _ := json.Marshal(struct {
		Primary     Dosha    `json:"primaryDosha"`
		Secondary   Dosha    `json:"secondaryDosha,omitempty"`
		Dietary     []string `json:"dietary"`
		Preferences []string `json:"preferences"`
	}{p.PrimaryDosha, p.SecondaryDosha, p.Dietary, p.Preferences})
	return fmt.Sprintf(`You are an Ayurvedic nutrition and lifestyle advisor for a community cafe and thrift store.
Score how well each item suits the customer on a scale from 0 to 100.
Customer profile: %s
Items: %s
Answer with JSON only: {"scores":[{"itemId":"<id>","score":<0-100>}]}`, profileJSON, itemsJSON)
}

func pricePrompt(it catalog.Item, h pricing.Suggestion) string {
	return fmt.Sprintf(`You price second-hand items for a community thrift store.
Item: %q (%s). Condition: %s. Original retail price: %d cents. Tags: %s.
Views: %d, favourites: %d. A rule-based estimate suggests %d cents.
Answer with JSON only: {"priceCents":<int>,"lowCents":<int>,"highCents":<int>,"rationale":"<one sentence>"}`,
		it.Name, it.Description, it.Condition, it.RetailPriceCents, strings.Join(it.Tags, ", "),
		it.Views, it.Favourites, h.PriceCents)
}

// parseScores decodes the model answer, dropping unknown items and
// clamping scores to 0..100
func parseScores(text string, items []catalog.Item) (map[string]float64, error) {
	var res struct {
		Scores []struct {
			ItemID string  `json:"itemId"`
			Score  float64 `json:"score"`
		} `json:"scores"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &res); err != nil {
		return nil, errors.Wrap(err, "decode ai scores")
	}
	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.ID] = true
	}
	scores := make(map[string]float64)
	for _, s := range res.Scores {
		if known[s.ItemID] {
			scores[s.ItemID] = clampScore(s.Score)
		}
	}
	return scores, nil
}

func parsePriceAdvice(text string) (PriceRange, error) {
	var pr PriceRange
	if err := json.Unmarshal([]byte(stripFences(text)), &pr); err != nil {
		return PriceRange{}, errors.Wrap(err, "decode ai price")
	}
	if pr.PriceCents <= 0 || pr.LowCents > pr.PriceCents || pr.HighCents < pr.PriceCents {
		return PriceRange{}, errors.Errorf("inconsistent ai price %d [%d, %d]", pr.PriceCents, pr.LowCents, pr.HighCents)
	}
	return pr, nil
}

// stripFences removes a markdown code fence some models wrap JSON in
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
