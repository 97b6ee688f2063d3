package swapcore

// FromBtc states, spec.md §4.2's table.
const (
	StateCreated    = "CREATED"
	StateCommited   = "COMMITED"
	StateBTCConfirmed = "BTC_CONFIRMED"
	StateClaimed    = "CLAIMED"
	StateRefundable = "REFUNDABLE"
	StateRefunded   = "REFUNDED"
	StateExpired    = "EXPIRED"
)

// FromBtcLn states, spec.md §4.3.
const (
	StateFLPRCreated      = "PR_CREATED"
	StateFLPRPaid         = "PR_PAID"
	StateFLClaimCommited  = "CLAIM_COMMITED"
	StateFLClaimClaimed   = "CLAIM_CLAIMED"
	StateFLFailed         = "FAILED"
	StateFLQuoteExpired   = "QUOTE_EXPIRED"
)

// ToBtc states, spec.md §4.4.
const (
	StateTBCreated    = "CREATED"
	StateTBCommited   = "COMMITED"
	StateTBSending    = "BTC_SENDING"
	StateTBSent       = "BTC_SENT"
	StateTBClaimed    = "CLAIMED"
	StateTBRefunded   = "REFUNDED"
)

// ToBtcLn states, spec.md §4.5.
const (
	StateTLCreated    = "CREATED"
	StateTLCommited   = "COMMITED"
	StateTLPaid       = "PAID"
	StateTLClaimed    = "CLAIMED"
	StateTLRefundable = "REFUNDABLE"
	StateTLRefunded   = "REFUNDED"
)

// TrustedFromBtcLn / TrustedFromBtc states, spec.md §4.6.
const (
	StateTrCreated     = "CREATED"
	StateTrReceived    = "RECEIVED"
	StateTrCrediting   = "CREDITING"
	StateTrFinished    = "FINISHED"
	StateTrDoubleSpent = "DOUBLE_SPENT"
	StateTrRefunding   = "REFUNDING"
	StateTrRefunded    = "REFUNDED"
)
