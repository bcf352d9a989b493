// Package accounts provides tenant accounts and their link to the
// external billing ledger.
package accounts
