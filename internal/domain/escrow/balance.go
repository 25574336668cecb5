package escrow

// Balances are the payee's totals per balance bucket
type Balances struct {
	Incoming  int64 `json:"incoming"`
	Available int64 `json:"available"`
}

// ComputeBalances sums held funds into Incoming and settled funds into
// Available. Pending and failed transactions count toward neither.
func ComputeBalances(transactions []*Transaction) Balances {
	var b Balances
	for _, t := range transactions {
		switch {
		case t.Status == StatusHeld && t.BalanceType == BalanceTypeIncoming:
			b.Incoming += t.Amount
		case t.Status == StatusCompleted && t.BalanceType == BalanceTypeAvailable:
			b.Available += t.Amount
		}
	}
	return b
}
