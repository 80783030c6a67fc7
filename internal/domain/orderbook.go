package domain

import "strconv"

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID  string
	TickSize float64
	NegRisk  bool
	Bids     []BookEntry // ordenados mayor a menor precio
	Asks     []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// Top devuelve el mejor bid/ask. Un lado vacío queda marcado con Has* = false.
func (ob OrderBook) Top() Quote {
	var q Quote
	if len(ob.Bids) > 0 {
		q.BestBid, q.HasBid = ob.Bids[0].Price, true
	}
	if len(ob.Asks) > 0 {
		q.BestAsk, q.HasAsk = ob.Asks[0].Price, true
	}
	return q
}

// Quote es el top of book de un token. Cualquiera de los dos lados puede faltar.
type Quote struct {
	BestBid float64
	BestAsk float64
	HasBid  bool
	HasAsk  bool
}

// InsideUnitInterval indica si ambos lados existen y están estrictamente en (0, 1).
// Un lado en 0 o 1 significa un book vacío o un mercado resuelto (o a punto).
func (q Quote) InsideUnitInterval() bool {
	inside := func(p float64) bool { return p > 0 && p < 1 }
	return q.HasBid && q.HasAsk && inside(q.BestBid) && inside(q.BestAsk)
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
