// Package store is the Mongo-backed persistence adapter for users,
// subscriptions and the static transit reference data (routes, trips,
// stop orders, stops).
//
// The matcher and poller consume it through narrow interfaces defined on
// the consumer side, so tests substitute fakes without a running Mongo.
package store
