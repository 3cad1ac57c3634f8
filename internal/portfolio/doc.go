// Package portfolio holds the durable resources of the application:
// portfolios, their sections, testimonials, contact messages and view
// counters. Persistence commits first; the realtime layer only ever
// announces state that is already on disk.
package portfolio
