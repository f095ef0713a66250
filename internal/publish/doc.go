// Package publish deploys a built output directory by committing it to a git
// branch and optionally pushing that branch to a remote.
package publish
