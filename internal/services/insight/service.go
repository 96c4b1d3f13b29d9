// Package insight gates the commentary vendor behind a per-scope,
// per-day cache and maps its free-form JSON onto the fixed persona
// schema.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
	"github.com/big0725/portfolio-pro/internal/models"
)

// Service implements InsightService
type Service struct {
	store  interfaces.PortfolioStore
	client interfaces.InsightClient
	logger *common.Logger
	now    func() time.Time // injectable clock for testing

	mu sync.Mutex
	// failed records, per scope, the day a regeneration last failed.
	// Session-only: never persisted, so a transient vendor failure does
	// not poison the stored cache entry.
	failed map[string]string
}

// NewService creates a new insight service
func NewService(store interfaces.PortfolioStore, client interfaces.InsightClient, logger *common.Logger) *Service {
	return &Service{
		store:  store,
		client: client,
		logger: logger,
		now:    time.Now,
		failed: make(map[string]string),
	}
}

// Get returns today's cached persona commentary for the scope, or
// regenerates it. Only the privileged identity triggers a regeneration;
// everyone else gets whatever is cached, stale included, and waits for
// the privileged identity's next refresh.
func (s *Service) Get(ctx context.Context, scope string, holdings map[string]models.Holding, force bool) (*models.Insight, error) {
	today := common.Today(s.now())

	cached, err := s.store.GetInsight(ctx, scope)
	if err != nil {
		s.logger.Warn().Str("scope", scope).Err(err).Msg("Insight cache read failed")
		cached = nil
	}
	if cached != nil {
		cached.Failed = s.failedToday(scope, today)
	}

	if cached != nil && cached.Date == today && cached.HasContent() && !cached.Failed && !force {
		return cached, nil
	}

	if !common.IsPrivileged(ctx) {
		return cached, nil
	}

	insight, err := s.regenerate(ctx, scope, holdings, today)
	if err != nil {
		s.markFailed(scope, today)
		if cached != nil {
			cached.Failed = true
		}
		return cached, fmt.Errorf("%w: %v", models.ErrInsightGenerationFailed, err)
	}

	s.clearFailed(scope)

	if err := s.store.SaveInsight(ctx, scope, insight); err != nil {
		// Optimistic local state: the fresh content is still served.
		s.logger.Warn().Str("scope", scope).Err(err).Msg("Insight cache write failed")
	}

	return insight, nil
}

func (s *Service) regenerate(ctx context.Context, scope string, holdings map[string]models.Holding, today string) (*models.Insight, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no commentary client configured")
	}

	prompt := buildPrompt(holdings)

	s.logger.Info().Str("scope", scope).Int("holdings", len(holdings)).Msg("Generating persona commentary")

	text, err := s.client.GenerateWithSearch(ctx, prompt)
	if err != nil {
		// Some deployments have the search tool disabled; plain
		// generation is an acceptable degradation.
		text, err = s.client.GenerateContent(ctx, prompt)
		if err != nil {
			return nil, err
		}
	}

	insight, err := parseInsight(text, today)
	if err != nil {
		return nil, err
	}
	return insight, nil
}

func (s *Service) failedToday(scope, today string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[scope] == today
}

func (s *Service) markFailed(scope, today string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[scope] = today
}

func (s *Service) clearFailed(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, scope)
}

// buildPrompt embeds the holdings summary and the three fixed personas.
func buildPrompt(holdings map[string]models.Holding) string {
	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString("You are reviewing an investment portfolio. Current holdings:\n")
	if len(symbols) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, symbol := range symbols {
		h := holdings[symbol]
		fmt.Fprintf(&b, "- %s: %g units, average cost %.2f\n", symbol, h.NetQuantity, h.AverageCost)
	}
	b.WriteString(`
Respond in the voice of three investors: Warren Buffett, Stanley Druckenmiller, and Cathie Wood.
Reply with a single JSON object and nothing else, shaped exactly like:
{
  "buffett": {"advice": "...", "action": "...", "pick": {"symbol": "...", "reason": "..."}},
  "druckenmiller": {"advice": "...", "action": "...", "pick": {"symbol": "...", "reason": "..."}},
  "cathie": {"advice": "...", "action": "...", "pick": {"symbol": "...", "reason": "..."}}
}
Keep each advice under 60 words. The pick must be a symbol not already held.`)
	return b.String()
}

// rawAdvice tolerates the vendor's drifting field names.
type rawAdvice struct {
	Advice         string   `json:"advice"`
	Comment        string   `json:"comment"`
	Commentary     string   `json:"commentary"`
	Action         string   `json:"action"`
	Recommendation string   `json:"recommendation"`
	Pick           *rawPick `json:"pick"`
	NewPick        *rawPick `json:"new_pick"`
	Suggestion     *rawPick `json:"suggestion"`
}

type rawPick struct {
	Symbol string `json:"symbol"`
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
	Why    string `json:"why"`
}

var personaAliases = map[string][]string{
	models.PersonaBuffett:       {"buffett", "warrenbuffett", "warren"},
	models.PersonaDruckenmiller: {"druckenmiller", "stanleydruckenmiller", "stanley"},
	models.PersonaCathie:        {"cathie", "cathiewood", "wood"},
}

// parseInsight extracts the single JSON object from the vendor's free
// text, bounded between the first '{' and the last '}', and maps it onto
// the three personas with flexible key casing and aliases.
func parseInsight(text, today string) (*models.Insight, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	normalized := make(map[string]json.RawMessage, len(raw))
	for key, value := range raw {
		normalized[normalizeKey(key)] = value
	}

	insight := &models.Insight{Date: today}
	for persona, aliases := range personaAliases {
		for _, alias := range aliases {
			value, ok := normalized[alias]
			if !ok {
				continue
			}
			advice := decodeAdvice(value)
			if advice == nil {
				continue
			}
			switch persona {
			case models.PersonaBuffett:
				insight.Buffett = advice
			case models.PersonaDruckenmiller:
				insight.Druckenmiller = advice
			case models.PersonaCathie:
				insight.Cathie = advice
			}
			break
		}
	}

	if !insight.HasContent() {
		return nil, fmt.Errorf("no recognizable persona in response")
	}
	return insight, nil
}

// normalizeKey lowers case and strips separators so "Warren_Buffett"
// matches "warrenbuffett".
func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func decodeAdvice(raw json.RawMessage) *models.PersonaAdvice {
	var decoded rawAdvice
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Some responses put a bare string where the object should be.
		var plain string
		if json.Unmarshal(raw, &plain) != nil || plain == "" {
			return nil
		}
		return &models.PersonaAdvice{Advice: plain}
	}

	advice := firstNonEmpty(decoded.Advice, decoded.Comment, decoded.Commentary)
	action := firstNonEmpty(decoded.Action, decoded.Recommendation)
	pick := firstPick(decoded.Pick, decoded.NewPick, decoded.Suggestion)

	if advice == "" && action == "" && pick == nil {
		return nil
	}
	return &models.PersonaAdvice{Advice: advice, Action: action, Pick: pick}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstPick(picks ...*rawPick) *models.PersonaPick {
	for _, p := range picks {
		if p == nil {
			continue
		}
		symbol := strings.ToUpper(firstNonEmpty(p.Symbol, p.Ticker))
		if symbol == "" {
			continue
		}
		return &models.PersonaPick{Symbol: symbol, Reason: firstNonEmpty(p.Reason, p.Why)}
	}
	return nil
}

// Ensure Service implements InsightService
var _ interfaces.InsightService = (*Service)(nil)
