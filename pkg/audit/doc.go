// Package audit records membership transitions and every billing
// ledger sync attempt, successful or not, with the before/after seat
// quantity.
package audit
