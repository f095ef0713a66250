// Package daemon keeps a site current: it rebuilds on a cron schedule, on
// content-published messages from NATS and on configuration changes, runs one
// build at a time, publishes finished builds and serves health, metrics and
// the contact form relay over HTTP.
package daemon
