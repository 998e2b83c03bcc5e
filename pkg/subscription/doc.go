// Package subscription implements the billing core: token resolution,
// the subscription state machine, compensated provider mutations, and the
// drift reconciler.
//
// Every mutating operation follows the same shape: resolve the provider
// token, load the current record, verify the transition is legal, snapshot
// the documents that will change, call the provider under the retry
// policy, then commit the record and the user mirror in one atomic batch.
// A failure after the snapshot rolls the documents back; the audit trail
// records the outcome either way.
package subscription
