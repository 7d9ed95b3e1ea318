package sol

import "time"

var (
	TokenAccountSize = uint64(165)
	MintAccountSize  = uint64(82)
)

// DefaultConfirmTimeout bounds the wait for a submitted transaction. A blockhash expires
// after about 150 slots, so an unconfirmed transaction cannot land after this.
const DefaultConfirmTimeout = 90 * time.Second
