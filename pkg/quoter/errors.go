package quoter

import "github.com/hypergrid-bot/hypergrid"

func newNoLiquidityError(cause error) error {
	return &hypergrid.QuoteFailedError{Reason: hypergrid.NoLiquidity, Err: cause}
}

func newRPCError(cause error) error {
	return &hypergrid.QuoteFailedError{Reason: hypergrid.RPCError, Err: cause}
}
