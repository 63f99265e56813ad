package bindingv1

// BuyerBinding pairs a fresh BTC deposit address with the byteball address
// that eventually receives the purchased bytes. BTC sent to
// ToBitcoinAddress buys bytes for OutByteballAddress.
type BuyerBinding struct {
	ID                 int64
	DeviceAddress      string
	OutByteballAddress string
	ToBitcoinAddress   string
}

// SellerBinding pairs a fresh byteball deposit address with the bitcoin
// address that eventually receives the sale proceeds. Bytes sent to
// ToByteballAddress sell for BTC paid to OutBitcoinAddress.
type SellerBinding struct {
	ID                int64
	DeviceAddress     string
	OutBitcoinAddress string
	ToByteballAddress string
}
