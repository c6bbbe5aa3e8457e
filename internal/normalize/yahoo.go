package normalize

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/tidwall/gjson"

	"github.com/newthinker/marketlens/internal/core"
)

// Yahoo parses v8 chart responses
type Yahoo struct{}

func (Yahoo) Source() string { return "yahoo" }

// chartResult returns chart.result[0], mapping chart.error onto coded errors.
func (Yahoo) chartResult(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, core.Errorf(core.ErrMalformedPayload, "yahoo: invalid json")
	}

	chart := gjson.GetBytes(body, "chart")
	if !chart.Exists() {
		return gjson.Result{}, core.Errorf(core.ErrMalformedPayload, "yahoo: missing chart")
	}

	if e := chart.Get("error"); e.IsObject() {
		code := e.Get("code").String()
		desc := e.Get("description").String()
		if strings.EqualFold(code, "Not Found") {
			return gjson.Result{}, core.Errorf(core.ErrSymbolNotFound, "yahoo: %s", desc)
		}
		return gjson.Result{}, core.Errorf(core.ErrUpstreamFailed, "yahoo %s: %s", code, desc)
	}

	result := chart.Get("result.0")
	if !result.Exists() {
		return gjson.Result{}, core.Errorf(core.ErrSymbolNotFound, "yahoo: empty result")
	}
	return result, nil
}

func (y Yahoo) Quote(body []byte) (QuoteFields, error) {
	result, err := y.chartResult(body)
	if err != nil {
		return QuoteFields{}, err
	}

	meta := result.Get("meta")
	price := meta.Get("regularMarketPrice")
	if !price.Exists() {
		return QuoteFields{}, core.Errorf(core.ErrMalformedPayload, "yahoo: missing regularMarketPrice")
	}

	prev := meta.Get("chartPreviousClose")
	if !prev.Exists() {
		prev = meta.Get("previousClose")
	}

	name := meta.Get("longName").String()
	if name == "" {
		name = meta.Get("shortName").String()
	}

	exchange := meta.Get("fullExchangeName").String()
	if exchange == "" {
		exchange = meta.Get("exchangeName").String()
	}

	return QuoteFields{
		Name:          name,
		Price:         price.Float(),
		Change:        optionalFloat(meta.Get("regularMarketChange")),
		ChangePercent: optionalFloat(meta.Get("regularMarketChangePercent")),
		Volume:        meta.Get("regularMarketVolume").Int(),
		High:          meta.Get("regularMarketDayHigh").Float(),
		Low:           meta.Get("regularMarketDayLow").Float(),
		Open:          lastNonNull(result.Get("indicators.quote.0.open")),
		PreviousClose: prev.Float(),
		MarketCap:     meta.Get("marketCap").Float(),
		Currency:      meta.Get("currency").String(),
		Exchange:      exchange,
	}, nil
}

func (y Yahoo) History(body []byte) ([]core.PriceBar, error) {
	result, err := y.chartResult(body)
	if err != nil {
		return nil, err
	}

	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	if len(timestamps) > 0 && !quote.Exists() {
		return nil, core.Errorf(core.ErrMalformedPayload, "yahoo: missing indicators.quote")
	}

	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	for _, series := range [][]gjson.Result{opens, highs, lows, closes} {
		if len(series) != len(timestamps) {
			return nil, core.Errorf(core.ErrMalformedPayload, "yahoo: series length %d != %d timestamps", len(series), len(timestamps))
		}
	}

	bars := make([]core.PriceBar, 0, len(timestamps))
	for i, ts := range timestamps {
		// Yahoo pads non-trading slots with nulls
		if closes[i].Type == gjson.Null {
			continue
		}
		var volume int64
		if i < len(volumes) {
			volume = volumes[i].Int()
		}
		bars = append(bars, core.PriceBar{
			Date:   time.Unix(ts.Int(), 0).UTC(),
			Open:   orDefault(opens[i], closes[i].Float()),
			High:   orDefault(highs[i], closes[i].Float()),
			Low:    orDefault(lows[i], closes[i].Float()),
			Close:  closes[i].Float(),
			Volume: volume,
		})
	}
	return bars, nil
}

func optionalFloat(r gjson.Result) null.Float {
	if !r.Exists() || r.Type == gjson.Null {
		return null.Float{}
	}
	return null.FloatFrom(r.Float())
}

func orDefault(r gjson.Result, def float64) float64 {
	if r.Type == gjson.Null {
		return def
	}
	return r.Float()
}

func lastNonNull(series gjson.Result) float64 {
	values := series.Array()
	for i := len(values) - 1; i >= 0; i-- {
		if values[i].Type != gjson.Null {
			return values[i].Float()
		}
	}
	return 0
}

// Search parses v1 finance/search responses
func (Yahoo) Search(body []byte) ([]core.SearchMatch, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.Errorf(core.ErrMalformedPayload, "yahoo: invalid json")
	}
	quotes := gjson.GetBytes(body, "quotes")
	if quotes.Exists() && !quotes.IsArray() {
		return nil, core.Errorf(core.ErrMalformedPayload, "yahoo: quotes is not an array")
	}

	var out []core.SearchMatch
	quotes.ForEach(func(_, q gjson.Result) bool {
		out = append(out, core.SearchMatch{
			Symbol:   q.Get("symbol").String(),
			Name:     firstNonEmpty(q.Get("shortname").String(), q.Get("longname").String()),
			Type:     firstNonEmpty(q.Get("typeDisp").String(), q.Get("quoteType").String()),
			Exchange: q.Get("exchange").String(),
			Sector:   q.Get("sector").String(),
			Industry: q.Get("industry").String(),
		})
		return true
	})
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
