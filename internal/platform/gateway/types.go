package gateway

import "encoding/json"

// envelope is the response body shape shared by every processor endpoint
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Customer identifies the payer on the hosted payment page
type Customer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

// Customizations brand the hosted payment page
type Customizations struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Logo        string `json:"logo,omitempty"`
}

// PaymentRequest opens a hosted payment session for a transaction
type PaymentRequest struct {
	TxRef    string   `json:"tx_ref"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Customer Customer `json:"customer"`
}

type paymentPayload struct {
	PaymentRequest
	RedirectURL    string         `json:"redirect_url"`
	Customizations Customizations `json:"customizations"`
}

// PaymentSession is what the client needs to complete the payment
type PaymentSession struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// Verification is the processor's own view of a captured payment
type Verification struct {
	ID       json.Number `json:"id"`
	TxRef    string      `json:"tx_ref"`
	Status   string      `json:"status"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

// TransferMeta describes the payer on the payout record
type TransferMeta struct {
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	MobileNumber string `json:"mobile_number"`
}

// TransferRequest moves settled funds to the payee's merchant account
type TransferRequest struct {
	MerchantID string       `json:"merchant_id"`
	Amount     int64        `json:"amount"`
	Currency   string       `json:"currency"`
	Reference  string       `json:"reference"`
	Meta       TransferMeta `json:"meta"`
}

// TransferResult carries the processor's reference for a completed payout
type TransferResult struct {
	Reference string
	Message   string
}
