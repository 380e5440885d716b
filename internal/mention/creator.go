package mention

import "strings"

// VerifiedAddress returns the author's most recently verified Ethereum
// address, which is the last entry of eth_addresses. ok is false when the
// author has verified none.
func VerifiedAddress(a Author) (addr string, ok bool) {
	addrs := a.VerifiedAddresses.EthAddresses
	if len(addrs) == 0 {
		return "", false
	}
	last := strings.TrimSpace(addrs[len(addrs)-1])
	return last, last != ""
}
