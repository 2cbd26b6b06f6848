package model

// EVSEDetails is the result of a QR-code lookup against one EVSE. The
// status check happens inside the stored procedure; Connectors and
// Rates are attached by the service after a successful check.
type EVSEDetails struct {
	EVSEUID      string      `json:"evse_uid"`
	LocationID   uint64      `json:"location_id"`
	LocationName string      `json:"location_name"`
	Address      string      `json:"address"`
	Status       string      `json:"status"`
	Connectors   []Connector `json:"connectors"`
	Rates        []QRRate    `json:"rates"`
}

// Connector is one physical plug on an EVSE.
type Connector struct {
	ConnectorID uint64 `json:"connector_id"`
	Standard    string `json:"standard"`
	Format      string `json:"format"`
	PowerType   string `json:"power_type"`
	MaxPowerKW  uint32 `json:"max_power_kw"`
	Status      string `json:"status"`
}

// QRRate is a guest charging rate published for an EVSE.
type QRRate struct {
	ID       uint64  `json:"id"`
	EVSEUID  string  `json:"evse_uid"`
	Minutes  uint32  `json:"minutes"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}
