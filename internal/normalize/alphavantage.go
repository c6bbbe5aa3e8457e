package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/tidwall/gjson"

	"github.com/newthinker/marketlens/internal/core"
)

// AlphaVantage parses GLOBAL_QUOTE and TIME_SERIES_DAILY responses
type AlphaVantage struct{}

func (AlphaVantage) Source() string { return "alphavantage" }

// object checks for the in-band notices Alpha Vantage returns with a 200.
func (AlphaVantage) object(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, core.Errorf(core.ErrMalformedPayload, "alphavantage: invalid json")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return gjson.Result{}, core.Errorf(core.ErrMalformedPayload, "alphavantage: expected object")
	}
	for _, key := range []string{"Note", "Information"} {
		if n := doc.Get(key); n.Exists() {
			return gjson.Result{}, core.Errorf(core.ErrUpstreamRateLimited, "alphavantage: %s", n.String())
		}
	}
	if e := doc.Get(gjson.Escape("Error Message")); e.Exists() {
		return gjson.Result{}, core.Errorf(core.ErrSymbolNotFound, "alphavantage: %s", e.String())
	}
	return doc, nil
}

func (a AlphaVantage) Quote(body []byte) (QuoteFields, error) {
	doc, err := a.object(body)
	if err != nil {
		return QuoteFields{}, err
	}

	q := doc.Get(gjson.Escape("Global Quote"))
	if !q.Exists() {
		return QuoteFields{}, core.Errorf(core.ErrMalformedPayload, "alphavantage: missing Global Quote")
	}
	if len(q.Map()) == 0 {
		return QuoteFields{}, core.Errorf(core.ErrSymbolNotFound, "alphavantage: empty Global Quote")
	}

	field := func(name string) gjson.Result { return q.Get(gjson.Escape(name)) }

	price := field("05. price")
	if !price.Exists() {
		return QuoteFields{}, core.Errorf(core.ErrMalformedPayload, "alphavantage: missing price")
	}

	pct, err := percent(field("10. change percent"))
	if err != nil {
		return QuoteFields{}, core.WrapError(core.ErrMalformedPayload, err)
	}

	return QuoteFields{
		Price:         price.Float(),
		Change:        optionalFloat(field("09. change")),
		ChangePercent: pct,
		Volume:        field("06. volume").Int(),
		High:          field("03. high").Float(),
		Low:           field("04. low").Float(),
		Open:          field("02. open").Float(),
		PreviousClose: field("08. previous close").Float(),
	}, nil
}

// percent parses strings like "-1.2345%"
func percent(r gjson.Result) (null.Float, error) {
	if !r.Exists() {
		return null.Float{}, nil
	}
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r.String()), "%"))
	if s == "" {
		return null.Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	return null.FloatFrom(v), nil
}

func (a AlphaVantage) History(body []byte) ([]core.PriceBar, error) {
	doc, err := a.object(body)
	if err != nil {
		return nil, err
	}

	series := doc.Get(gjson.Escape("Time Series (Daily)"))
	if !series.IsObject() {
		return nil, core.Errorf(core.ErrMalformedPayload, "alphavantage: missing Time Series (Daily)")
	}

	var bars []core.PriceBar
	var parseErr error
	series.ForEach(func(key, value gjson.Result) bool {
		date, err := time.Parse(time.DateOnly, key.String())
		if err != nil {
			parseErr = core.Errorf(core.ErrMalformedPayload, "alphavantage: date %q", key.String())
			return false
		}
		field := func(name string) float64 { return value.Get(gjson.Escape(name)).Float() }
		bars = append(bars, core.PriceBar{
			Date:   date,
			Open:   field("1. open"),
			High:   field("2. high"),
			Low:    field("3. low"),
			Close:  field("4. close"),
			Volume: value.Get(gjson.Escape("5. volume")).Int(),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return bars, nil
}
