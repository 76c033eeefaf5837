// Package analysis queues enrichment work for assets and drains it in the
// background.
//
// Scheduler deduplicates tasks by (kind, asset id). Worker drains the oldest
// tasks on a fixed interval, runs them through an Analyzer, persists the
// results through a ResultStore and pushes an Update to every subscriber.
// Subscribers that fall behind miss updates rather than stall the loop.
//
// LibraryAnalyzer implements the metadata kind by rendering a small sample
// through the media library and deriving its palette. Similarity, blur and
// document scoring belong to an external analyzer.
package analysis
