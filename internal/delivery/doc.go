// Package delivery moves finished videos to object storage and tells the
// caller how each task ended.
//
// Uploads are retried a fixed number of times with linear backoff. Every
// successful upload is appended to an audit log of public URLs. Outcomes are
// published as events; the HTTP notifier and the notify log subscribe to
// them, and neither one can change a task's bookkeeping.
package delivery
