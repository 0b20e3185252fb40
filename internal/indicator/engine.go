package indicator

import (
	"fmt"

	"patternscope/pkg/model"
)

// Row is a bar extended with its derived indicator values
type Row struct {
	model.Bar
	SMA            Value
	EMAFast        Value
	EMASlow        Value
	RSI            Value
	BollingerMid   Value
	BollingerUpper Value
	BollingerLower Value
	MACD           Value
	MACDSignal     Value
}

// Field is a named derived column of a row
type Field struct {
	Name  string
	Value Value
}

// Fields lists the derived columns enabled by opts, in output order
func (r Row) Fields(opts Options) []Field {
	fields := []Field{
		{fmt.Sprintf("SMA_%d", opts.Windows.SMA), r.SMA},
		{fmt.Sprintf("EMA_%d", opts.Windows.EMAFast), r.EMAFast},
		{fmt.Sprintf("EMA_%d", opts.Windows.EMASlow), r.EMASlow},
	}
	if opts.Include.RSI {
		fields = append(fields, Field{fmt.Sprintf("RSI_%d", opts.Windows.RSI), r.RSI})
	}
	if opts.Include.Bollinger {
		fields = append(fields,
			Field{"Bollinger_Mid", r.BollingerMid},
			Field{"Bollinger_Upper", r.BollingerUpper},
			Field{"Bollinger_Lower", r.BollingerLower},
		)
	}
	if opts.Include.MACD {
		fields = append(fields,
			Field{"MACD", r.MACD},
			Field{"MACD_Signal", r.MACDSignal},
		)
	}
	return fields
}

func (r *Row) values() []*Value {
	return []*Value{
		&r.SMA, &r.EMAFast, &r.EMASlow, &r.RSI,
		&r.BollingerMid, &r.BollingerUpper, &r.BollingerLower,
		&r.MACD, &r.MACDSignal,
	}
}

// Engine turns a raw series into indicator rows. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an engine with the given options
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("indicator options: %w", err)
	}
	return &Engine{opts: opts}, nil
}

// Options returns the engine configuration
func (e *Engine) Options() Options {
	return e.opts
}

// Prepare validates a series and drops rows with a missing price.
// minBars overrides the configured minimum when positive.
func (e *Engine) Prepare(s *model.Series, minBars int) (*model.Series, error) {
	if s == nil || s.Len() == 0 {
		return nil, ErrEmptySeries
	}

	var missing []model.Column
	for _, c := range model.PriceColumns {
		if !s.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}

	bars := make([]model.Bar, 0, s.Len())
	for _, b := range s.Bars {
		if b.Complete() {
			bars = append(bars, b)
		}
	}

	need := e.opts.MinBars
	if minBars > 0 {
		need = minBars
	}
	if len(bars) < need {
		return nil, &InsufficientHistoryError{Have: len(bars), Need: need}
	}
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}

	clean := *s
	clean.Bars = bars
	return &clean, nil
}

// Compute prepares the series and derives every configured indicator
func (e *Engine) Compute(s *model.Series) ([]Row, error) {
	clean, err := e.Prepare(s, 0)
	if err != nil {
		return nil, err
	}
	return e.Derive(clean.Bars), nil
}

// Derive computes indicator rows for bars that are already complete
func (e *Engine) Derive(bars []model.Bar) []Row {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	o := e.opts
	sma := SMA(closes, o.Windows.SMA)
	emaFast := EMA(closes, o.Windows.EMAFast)
	emaSlow := EMA(closes, o.Windows.EMASlow)

	var rsi []Value
	if o.Include.RSI {
		rsi = RSI(closes, o.Windows.RSI)
	}
	var bands Bands
	if o.Include.Bollinger {
		bands = Bollinger(closes, o.Windows.Bollinger, o.BollingerK)
	}
	var macd MACDLines
	if o.Include.MACD {
		macd = MACD(closes, o.MACD.Fast, o.MACD.Slow, o.MACD.Signal)
	}

	rows := make([]Row, len(bars))
	for i, b := range bars {
		r := Row{
			Bar:     b,
			SMA:     sma[i],
			EMAFast: emaFast[i],
			EMASlow: emaSlow[i],
		}
		if rsi != nil {
			r.RSI = rsi[i]
		}
		if bands.Mid != nil {
			r.BollingerMid = bands.Mid[i]
			r.BollingerUpper = bands.Upper[i]
			r.BollingerLower = bands.Lower[i]
		}
		if macd.MACD != nil {
			r.MACD = macd.MACD[i]
			r.MACDSignal = macd.Signal[i]
		}
		for _, v := range r.values() {
			*v = sanitize(*v)
		}
		rows[i] = r
	}
	return rows
}
