// Package services contains the application services of the praylist
// client: authentication and session lifecycle, records and groups, and
// account metadata. Writes go through the mutation engine; reads come from
// the local cache.
package services
