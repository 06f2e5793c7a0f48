package gateway

// TFInfo is the REST response type for /api/tfs.
type TFInfo struct {
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// CandleOut is the REST response type for /api/candles.
type CandleOut struct {
	TS       string  `json:"ts"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	Count    float64 `json:"count"`
	Token    string  `json:"token"`
	Exchange string  `json:"exchange"`
	TF       int     `json:"tf"`
	Forming  bool    `json:"forming"`
}

// IndPoint is the REST response type for /api/indicators/history.
type IndPoint struct {
	Value float64 `json:"value"`
	TS    string  `json:"ts"`
	Ready bool    `json:"ready"`
}

// StructureOut is the REST/snapshot response type for a single fractal, pen,
// or segment event.
type StructureOut struct {
	Kind      string  `json:"kind"`
	Sub       string  `json:"sub"`
	Time      int64   `json:"time"`
	Price     float64 `json:"price"`
	FromTime  int64   `json:"from_time,omitempty"`
	FromPrice float64 `json:"from_price,omitempty"`
	ToTime    int64   `json:"to_time,omitempty"`
	ToPrice   float64 `json:"to_price,omitempty"`
	Direction string  `json:"direction,omitempty"`
	TS        string  `json:"ts"`
}
