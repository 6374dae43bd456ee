package models

// SupplyChainStage is the structural classification of a lot derived from its linked records.
type SupplyChainStage string

const (
	SupplyChainPending   SupplyChainStage = "pending"
	SupplyChainHarvested SupplyChainStage = "harvested"
	SupplyChainTested    SupplyChainStage = "tested"
	SupplyChainProcessed SupplyChainStage = "processed"
	SupplyChainCompleted SupplyChainStage = "completed"
)

// SupplyChainStatus is the display form of a SupplyChainStage.
type SupplyChainStatus struct {
	Stage SupplyChainStage `json:"stage"`
	Label string           `json:"status"`
	Color string           `json:"color"`
}

// LinkCounts is the number of children linked to a lot, per kind.
type LinkCounts struct {
	Harvests          int `json:"harvests"`
	TestResults       int `json:"test_results"`
	ProcessingBatches int `json:"processing_batches"`
	Certificates      int `json:"certificates"`
}

var supplyChainStatuses = map[SupplyChainStage]SupplyChainStatus{
	SupplyChainPending:   {Stage: SupplyChainPending, Label: "Awaiting Harvest", Color: "#f39c12"},
	SupplyChainHarvested: {Stage: SupplyChainHarvested, Label: "Awaiting Lab Testing", Color: "#3498db"},
	SupplyChainTested:    {Stage: SupplyChainTested, Label: "Awaiting Processing", Color: "#9b59b6"},
	SupplyChainProcessed: {Stage: SupplyChainProcessed, Label: "Awaiting Certification", Color: "#e67e22"},
	SupplyChainCompleted: {Stage: SupplyChainCompleted, Label: "Supply Chain Complete", Color: "#27ae60"},
}

// ClassifySupplyChain maps link counts to a supply-chain stage. The first missing kind, in
// harvest, test, batch, certificate order, decides the stage. Workflow flags play no part.
func ClassifySupplyChain(c LinkCounts) SupplyChainStatus {
	switch {
	case c.Harvests == 0:
		return supplyChainStatuses[SupplyChainPending]
	case c.TestResults == 0:
		return supplyChainStatuses[SupplyChainHarvested]
	case c.ProcessingBatches == 0:
		return supplyChainStatuses[SupplyChainTested]
	case c.Certificates == 0:
		return supplyChainStatuses[SupplyChainProcessed]
	default:
		return supplyChainStatuses[SupplyChainCompleted]
	}
}

// LotWithStatus pairs a lot with its supply-chain classification.
type LotWithStatus struct {
	Lot
	SupplyChainStatus SupplyChainStatus `json:"supply_chain_status"`
}

// WithSupplyChainStatus attaches the classification to l.
func (l Lot) WithSupplyChainStatus() LotWithStatus {
	return LotWithStatus{Lot: l, SupplyChainStatus: ClassifySupplyChain(l.Links())}
}
