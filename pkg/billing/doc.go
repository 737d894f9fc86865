// Package billing sells message credits through the Khalti payment gateway.
//
// # Overview
//
// A purchase starts as a pending row carrying a purchase_order_id. Initiate
// registers it with the gateway, stores the returned pidx, and hands the
// payment URL back to the caller. When the payer returns, Settle looks the
// pidx up with the gateway and finalizes the purchase:
//
//   - Completed: the purchase is marked completed and its credits are
//     added to the user's balance in the same transaction
//   - Expired, User canceled, Refunded: the purchase is marked failed
//   - Pending, Initiated: nothing changes
//
// Credits are granted at most once per pidx. A second Settle for the same
// pidx, whether from a browser refresh or the sweep, returns the settled
// purchase without contacting the gateway.
//
// # Pricing
//
// UnitPrice is the rupee price of one credit. The gateway works in paisa,
// so a purchase of n credits must carry an amount of n * UnitPrice * 100.
//
// # Sweep
//
// Payers who never return leave purchases pending. SweepPending settles
// every pending purchase older than Config.SweepAge, and Schedule runs it
// on a cron schedule:
//
//	c := cron.New(cron.WithLocation(time.UTC))
//	if _, err := svc.Schedule(c, "@every 5m"); err != nil {
//		return err
//	}
//	c.Start()
//	defer c.Stop()
package billing
