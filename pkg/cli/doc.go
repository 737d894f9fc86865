// Package cli provides the mindful command-line client.
//
// # Commands
//
// balance: show remaining message credits
//
//	mindful balance
//
// history: print the thread with the expert
//
//	mindful history
//
// send: send one message, spending a credit
//
//	mindful send "I could not sleep again last night"
//
// buy: start a credit purchase and print the payment link
//
//	mindful buy 10
//
// return: finish a purchase with the URL the payment page sent you back to
//
//	mindful return "http://localhost:5173/chat?pidx=bZQLD9wRVWo4CdESSfuSsB"
//
// chat: interactive session. Lines are sent as messages; /buy n,
// /return url, /balance, /history and /quit are commands. After paying,
// paste the return URL with /return to pick up the new balance.
//
// # Configuration
//
// Settings are read from ~/.mindful.yaml (or --config) and overridden by
// flags:
//
//	base_url: http://localhost:8080
//	token: eyJhbGciOiJIUzI1NiIs...
//	unit_price: 25
//	location: http://localhost:5173/chat
//
// login stores a token in that file:
//
//	mindful login eyJhbGciOiJIUzI1NiIs...
package cli
