package normalize

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/newthinker/marketlens/internal/core"
)

// Finnhub parses /quote and /stock/candle responses
type Finnhub struct{}

func (Finnhub) Source() string { return "finnhub" }

func (Finnhub) object(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, core.Errorf(core.ErrMalformedPayload, "finnhub: invalid json")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return gjson.Result{}, core.Errorf(core.ErrMalformedPayload, "finnhub: expected object")
	}
	if e := doc.Get("error"); e.Exists() {
		return gjson.Result{}, core.Errorf(core.ErrUpstreamFailed, "finnhub: %s", e.String())
	}
	return doc, nil
}

func (f Finnhub) Quote(body []byte) (QuoteFields, error) {
	doc, err := f.object(body)
	if err != nil {
		return QuoteFields{}, err
	}

	price := doc.Get("c")
	if !price.Exists() {
		return QuoteFields{}, core.Errorf(core.ErrMalformedPayload, "finnhub: missing c")
	}
	// Unknown symbols come back as an all-zero quote
	if price.Float() == 0 && doc.Get("pc").Float() == 0 {
		return QuoteFields{}, core.Errorf(core.ErrSymbolNotFound, "finnhub: empty quote")
	}

	return QuoteFields{
		Price:         price.Float(),
		Change:        optionalFloat(doc.Get("d")),
		ChangePercent: optionalFloat(doc.Get("dp")),
		High:          doc.Get("h").Float(),
		Low:           doc.Get("l").Float(),
		Open:          doc.Get("o").Float(),
		PreviousClose: doc.Get("pc").Float(),
	}, nil
}

func (f Finnhub) History(body []byte) ([]core.PriceBar, error) {
	doc, err := f.object(body)
	if err != nil {
		return nil, err
	}

	switch status := doc.Get("s").String(); status {
	case "ok":
	case "no_data":
		return nil, core.Errorf(core.ErrSymbolNotFound, "finnhub: no_data")
	default:
		return nil, core.Errorf(core.ErrMalformedPayload, "finnhub: candle status %q", status)
	}

	ts := doc.Get("t").Array()
	opens := doc.Get("o").Array()
	highs := doc.Get("h").Array()
	lows := doc.Get("l").Array()
	closes := doc.Get("c").Array()
	volumes := doc.Get("v").Array()

	for _, series := range [][]gjson.Result{opens, highs, lows, closes, volumes} {
		if len(series) != len(ts) {
			return nil, core.Errorf(core.ErrMalformedPayload, "finnhub: series length %d != %d timestamps", len(series), len(ts))
		}
	}

	bars := make([]core.PriceBar, len(ts))
	for i := range ts {
		bars[i] = core.PriceBar{
			Date:   time.Unix(ts[i].Int(), 0).UTC(),
			Open:   opens[i].Float(),
			High:   highs[i].Float(),
			Low:    lows[i].Float(),
			Close:  closes[i].Float(),
			Volume: volumes[i].Int(),
		}
	}
	return bars, nil
}

// Search parses /search responses; Finnhub reports neither exchange nor sector
func (f Finnhub) Search(body []byte) ([]core.SearchMatch, error) {
	doc, err := f.object(body)
	if err != nil {
		return nil, err
	}

	var out []core.SearchMatch
	for _, r := range doc.Get("result").Array() {
		out = append(out, core.SearchMatch{
			Symbol: firstNonEmpty(r.Get("symbol").String(), r.Get("displaySymbol").String()),
			Name:   r.Get("description").String(),
			Type:   r.Get("type").String(),
		})
	}
	return out, nil
}
