// Package events carries task outcomes from the pipelines to whoever needs
// to hear about them.
//
// The generation processor and the merge service emit one OutcomeEvent per
// finished task. Handlers registered on the emitter turn those into caller
// notifications and notify-log lines, so the pipelines never depend on the
// delivery side directly.
package events
