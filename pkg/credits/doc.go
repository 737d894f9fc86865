// Package credits implements the client-side credit ledger gate for paid
// expert chat.
//
// # Overview
//
// A Gate tracks the displayed number of remaining message credits, decides
// whether an outbound message may be dispatched, drives the purchase flow
// that hands control to the external payment processor, and reconciles the
// balance when the user returns with a payment callback token.
//
// The local counter is a cache. The backend is the source of truth: the
// counter is refreshed on mount and after every payment return, and the
// local decrement after a successful send is only a display hint.
//
// # Usage Example
//
//	gate := credits.NewGate(session, backend, navigator, location, credits.Config{
//		UnitPrice: 25,
//	})
//	if err := gate.Mount(ctx); err != nil {
//		// non-fatal, shown as a notice
//	}
//	if _, err := gate.TrySend(ctx, "hello"); errors.Is(err, credits.ErrInsufficientCredits) {
//		intent, _ := gate.Quote(10)
//		fmt.Printf("10 credits cost Rs. %d\n", intent.TotalPrice)
//		gate.Purchase(ctx, 10)
//	}
//
// # State Machine
//
//	Idle -> Sending -> Idle
//	Idle -> PurchasePending -> Idle (on reconciliation)
//
// # Related Packages
//
//   - pkg/client: HTTP implementation of Backend
//   - pkg/cli: terminal thread view driving a Gate
package credits
