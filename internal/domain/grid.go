package domain

// GridLevelState is one rung's state machine:
//
//	empty --place_buy--> buy_pending
//	buy_pending --filled--> buy_filled
//	buy_pending --exchange_cancel--> empty
//	buy_filled --place_sell--> sell_pending
//	sell_pending --filled--> empty           (+ realized PnL event)
//	sell_pending --exchange_cancel--> empty  (loses buy inventory; orphaned)
type GridLevelState string

const (
	LevelEmpty       GridLevelState = "empty"
	LevelBuyPending  GridLevelState = "buy_pending"
	LevelBuyFilled   GridLevelState = "buy_filled"
	LevelSellPending GridLevelState = "sell_pending"
)

// GridLevel is one price rung of a grid strategy instance.
type GridLevel struct {
	Index       int
	Price       string
	State       GridLevelState
	BuyOrderID  string
	SellOrderID string
	Size        string
}

// OrphanPosition records inventory acquired by a filled buy whose paired
// sell was exchange-cancelled before it could also fill. The level resets
// to empty as the grid spec requires, but the inventory itself is surfaced
// here rather than silently dropped.
type OrphanPosition struct {
	LevelIndex int
	BuyPrice   string
	Size       string
	DetectedAt int64
}
