// Package locationgroup maintains the location → group → light tree.
//
// Every light belongs to exactly one group inside exactly one location,
// identified by the hex form of the 16-byte ids the device reports. The
// display name of a location or group is the label carried by its member
// with the newest updated-at stamp. Empty groups and locations are pruned
// as lights move.
package locationgroup
