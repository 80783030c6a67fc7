package polymarket

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// mapOrderBook convierte la respuesta de /book a domain.OrderBook.
func mapOrderBook(tokenID string, r orderBookResponse) domain.OrderBook {
	ob := domain.OrderBook{
		TokenID: tokenID,
		NegRisk: r.NegRisk,
		Bids:    mapBookEntries(r.Bids, false),
		Asks:    mapBookEntries(r.Asks, true),
	}
	if tick, err := r.TickSize.Float64(); err == nil {
		ob.TickSize = tick
	}
	return ob
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// mapOrderStatus convierte la respuesta de /data/order. Los tamaños llegan como strings decimales.
func mapOrderStatus(o clobOrder) domain.OrderStatus {
	return domain.OrderStatus{
		OrderID:  o.ID,
		Matched:  parseFloat(o.SizeMatched),
		Original: parseFloat(o.OriginalSize),
		Status:   o.Status,
	}
}

// mapGammaMarket saca los tokens UP y DOWN de un mercado de Gamma.
// Los outcomes se emparejan por nombre ("Up"/"Yes" primero); sin nombres el
// primer token es UP.
func mapGammaMarket(slug string, gm gammaMarket) (domain.Market, error) {
	ids := make([]string, 0, len(gm.ClobTokenIDs))
	for _, id := range gm.ClobTokenIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) != 2 {
		return domain.Market{}, fmt.Errorf("expected 2 clobTokenIds for %q, got %d", slug, len(ids))
	}

	up, down := ids[0], ids[1]
	if len(gm.Outcomes) == 2 {
		switch strings.ToLower(gm.Outcomes[1]) {
		case "up", "yes":
			up, down = ids[1], ids[0]
		}
	}

	return domain.Market{
		Slug:        slug,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Up:          domain.TokenMeta{TokenID: up, NegRisk: gm.NegRisk},
		Down:        domain.TokenMeta{TokenID: down, NegRisk: gm.NegRisk},
	}, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
