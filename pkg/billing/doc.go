// Package billing reconciles billable seat counts with the external
// subscription ledger. The Synchronizer always writes an absolute
// quantity recomputed from current membership state, which is what
// makes retries and concurrent calls safe.
package billing
