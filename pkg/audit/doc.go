// Package audit records the outcome of every billing operation.
//
// Recording is best-effort: the Dispatcher runs writes on background
// goroutines with their own deadline, so a failed or slow audit sink never
// fails the operation being recorded. Entries that fail before a
// subscription is resolved carry UnknownSubscriptionID.
//
// Two sinks exist: StoreRecorder writes to the document store next to the
// subscription data, DBRecorder writes to PostgreSQL for retention and
// ad-hoc queries. MultiRecorder fans out to both.
package audit
