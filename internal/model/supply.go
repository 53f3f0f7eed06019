package model

// SupplySnapshot is one cumulative investor-flow reading for a symbol, as
// delivered by the external refresh collaborator. Values are cumulative
// net volume per category since market open, not deltas.
type SupplySnapshot struct {
	Symbol  string        `json:"symbol"`
	Volumes SupplyVolumes `json:"volumes"`
	Time    int64         `json:"time"` // ms since epoch of the reading
}

// SupplyFlowRecord is the tracker's view for one symbol: the latest cumulative
// snapshot, the per-category change since the previous snapshot, and update
// bookkeeping.
type SupplyFlowRecord struct {
	Current    SupplyVolumes `json:"current"`
	Delta      SupplyVolumes `json:"delta"`
	LastUpdate int64         `json:"last_update"` // ms since epoch, 0 if never
	Round      int64         `json:"round"`       // snapshots applied so far
}
