package metrics

import "expvar"

var (
	FeedReconnects  = expvar.NewInt("feed_reconnects")
	QuotesProcessed = expvar.NewInt("quotes_processed")
	QuotesDropped   = expvar.NewInt("quotes_dropped")

	PairsResolved     = expvar.NewInt("pairs_resolved")
	ReferenceCaptured = expvar.NewInt("reference_captured")
	ReferenceFailed   = expvar.NewInt("reference_failed")

	TradesSubmitted   = expvar.NewInt("trades_submitted")
	TradesCompleted   = expvar.NewInt("trades_completed")
	TradesAborted     = expvar.NewInt("trades_aborted")
	TradesUnwound     = expvar.NewInt("trades_unwound")
	TradesStuck       = expvar.NewInt("trades_stuck")
	OrderSubmitErrors = expvar.NewInt("order_submit_errors")
)
