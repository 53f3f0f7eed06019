package model

import (
	"encoding/json"
	"strconv"
)

// The persisted row schema is fixed here, in column order, and must never be
// reordered once files exist: downstream consumers key on position as well as
// name. The historical "44indicators" file-name tag is kept even though the
// schema carries 58 columns (the investor-flow block stores both the
// cumulative snapshot and its delta under distinct names).
//
// Neutral defaults for insufficient history: RSI and stochastic report 50.0
// (the no-signal midpoint, never NaN), vol_ratio reports 1.0, everything else
// reports 0.

// ColumnType declares how a schema column is coerced when serialized.
type ColumnType int

const (
	ColInt ColumnType = iota
	ColString
	ColFloat
)

// Column is one named, typed column of the output schema.
type Column struct {
	Name string
	Type ColumnType
}

// SupplyCategories are the investor categories tracked for net-volume flow,
// in schema order.
var SupplyCategories = []string{
	"individual",
	"foreign",
	"institution",
	"pension",
	"investment",
	"insurance",
	"private_fund",
	"bank",
	"state",
	"other_corp",
	"program",
}

// NumSupplyCategories is len(SupplyCategories), usable as an array bound.
const NumSupplyCategories = 11

// SupplyVolumes holds one net-volume figure per investor category,
// indexed in SupplyCategories order.
type SupplyVolumes [NumSupplyCategories]int64

// Columns is the full output schema in order.
var Columns = buildColumns()

func buildColumns() []Column {
	cols := []Column{
		{"time", ColInt},
		{"stock_code", ColString},
		{"current_price", ColFloat},
		{"volume", ColInt},

		{"ma5", ColFloat},
		{"rsi14", ColFloat},
		{"disparity", ColFloat},
		{"stoch_k", ColFloat},
		{"stoch_d", ColFloat},

		{"vol_ratio", ColFloat},
		{"z_vol", ColFloat},
		{"obv_delta", ColFloat},

		{"spread", ColFloat},
		{"bid_ask_imbalance", ColFloat},

		{"accel_delta", ColFloat},
		{"ret_1s", ColFloat},
	}
	for i := 1; i <= BookLevels; i++ {
		cols = append(cols, Column{"ask" + strconv.Itoa(i), ColFloat})
	}
	for i := 1; i <= BookLevels; i++ {
		cols = append(cols, Column{"bid" + strconv.Itoa(i), ColFloat})
	}
	for i := 1; i <= BookLevels; i++ {
		cols = append(cols, Column{"ask" + strconv.Itoa(i) + "_qty", ColInt})
	}
	for i := 1; i <= BookLevels; i++ {
		cols = append(cols, Column{"bid" + strconv.Itoa(i) + "_qty", ColInt})
	}
	for _, cat := range SupplyCategories {
		cols = append(cols, Column{"net_" + cat, ColInt})
	}
	for _, cat := range SupplyCategories {
		cols = append(cols, Column{"delta_" + cat, ColInt})
	}
	return cols
}

// ColumnNames returns the schema header row.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

// IndicatorVector is one computed row: the full schema for a single trade.
type IndicatorVector struct {
	Time   int64   `json:"time"` // ms since epoch
	Symbol string  `json:"stock_code"`
	Price  float64 `json:"current_price"`
	Volume int64   `json:"volume"`

	MA5       float64 `json:"ma5"`
	RSI14     float64 `json:"rsi14"`
	Disparity float64 `json:"disparity"`
	StochK    float64 `json:"stoch_k"`
	StochD    float64 `json:"stoch_d"`

	VolRatio float64 `json:"vol_ratio"`
	ZVol     float64 `json:"z_vol"`
	OBVDelta float64 `json:"obv_delta"`

	Spread          float64 `json:"spread"`
	BidAskImbalance float64 `json:"bid_ask_imbalance"`

	AccelDelta float64 `json:"accel_delta"`
	Ret1s      float64 `json:"ret_1s"`

	Ask    [BookLevels]float64 `json:"ask"`
	Bid    [BookLevels]float64 `json:"bid"`
	AskQty [BookLevels]int64   `json:"ask_qty"`
	BidQty [BookLevels]int64   `json:"bid_qty"`

	Net      SupplyVolumes `json:"net"`
	NetDelta SupplyVolumes `json:"net_delta"`
}

// Row serializes the vector into schema order, one string per column,
// coerced to the column's declared type.
func (v *IndicatorVector) Row() []string {
	row := make([]string, 0, len(Columns))
	row = append(row,
		strconv.FormatInt(v.Time, 10),
		v.Symbol,
		fmtFloat(v.Price),
		strconv.FormatInt(v.Volume, 10),

		fmtFloat(v.MA5),
		fmtFloat(v.RSI14),
		fmtFloat(v.Disparity),
		fmtFloat(v.StochK),
		fmtFloat(v.StochD),

		fmtFloat(v.VolRatio),
		fmtFloat(v.ZVol),
		fmtFloat(v.OBVDelta),

		fmtFloat(v.Spread),
		fmtFloat(v.BidAskImbalance),

		fmtFloat(v.AccelDelta),
		fmtFloat(v.Ret1s),
	)
	for i := 0; i < BookLevels; i++ {
		row = append(row, fmtFloat(v.Ask[i]))
	}
	for i := 0; i < BookLevels; i++ {
		row = append(row, fmtFloat(v.Bid[i]))
	}
	for i := 0; i < BookLevels; i++ {
		row = append(row, strconv.FormatInt(v.AskQty[i], 10))
	}
	for i := 0; i < BookLevels; i++ {
		row = append(row, strconv.FormatInt(v.BidQty[i], 10))
	}
	for i := 0; i < NumSupplyCategories; i++ {
		row = append(row, strconv.FormatInt(v.Net[i], 10))
	}
	for i := 0; i < NumSupplyCategories; i++ {
		row = append(row, strconv.FormatInt(v.NetDelta[i], 10))
	}
	return row
}

// JSON returns the JSON-encoded vector.
func (v *IndicatorVector) JSON() []byte {
	b, _ := json.Marshal(v)
	return b
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
