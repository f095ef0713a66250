// Package contact implements the contact form: its field definitions, input
// validation, the submission state machine and the boundary that delivers a
// submission to the configured endpoint.
package contact
