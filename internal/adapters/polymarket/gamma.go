package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

const gammaEventsPath = "/events"

// ResolveMarket busca en Gamma el evento con el slug dado y devuelve su mercado
// binario con los token ids de UP y DOWN.
func (c *Client) ResolveMarket(ctx context.Context, slug string) (domain.Market, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Market{}, fmt.Errorf("gamma.ResolveMarket: empty slug: %w", domain.ErrConfiguration)
	}

	u := fmt.Sprintf("%s%s?%s", c.gammaBase, gammaEventsPath, url.Values{"slug": []string{slug}}.Encode())

	var events []gammaEvent
	if err := c.get(ctx, c.gammaLimiter, u, &events); err != nil {
		return domain.Market{}, fmt.Errorf("gamma.ResolveMarket: %s: %w", slug, err)
	}
	if len(events) == 0 {
		return domain.Market{}, fmt.Errorf("gamma.ResolveMarket: no event for slug %q", slug)
	}

	// Mercado con slug exacto si existe; si no, el primero del primer evento.
	var chosen *gammaMarket
	for i := range events {
		for j := range events[i].Markets {
			if strings.TrimSpace(events[i].Markets[j].Slug) == slug {
				chosen = &events[i].Markets[j]
				break
			}
		}
		if chosen != nil {
			break
		}
	}
	if chosen == nil {
		if len(events[0].Markets) == 0 {
			return domain.Market{}, fmt.Errorf("gamma.ResolveMarket: event %q has no markets", slug)
		}
		chosen = &events[0].Markets[0]
	}

	m, err := mapGammaMarket(slug, *chosen)
	if err != nil {
		return domain.Market{}, fmt.Errorf("gamma.ResolveMarket: %w", err)
	}

	slog.Debug("gamma market resolved",
		"slug", slug,
		"condition", m.ConditionID,
		"up", m.Up.TokenID,
		"down", m.Down.TokenID,
	)
	return m, nil
}
