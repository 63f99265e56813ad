package settlementv1

// Kind distinguishes the four payout sweeps.
type Kind string

const (
	KindBookBytes    Kind = "book_bytes"
	KindBookBTC      Kind = "book_btc"
	KindInstantBytes Kind = "instant_bytes"
	KindInstantBTC   Kind = "instant_btc"
)

// Obligation is a matured payout owed to a participant. SourceID is the
// executed order or instant deal that produced it; the execution marker
// table keyed on SourceID makes each obligation pay out at most once.
type Obligation struct {
	Kind          Kind
	SourceID      int64
	DeviceAddress string
	ToAddress     string
	Amount        int64
}

// BytesObligation returns true when the payout leaves on the bytes rail.
func (o Obligation) BytesObligation() bool {
	return o.Kind == KindBookBytes || o.Kind == KindInstantBytes
}
