// Package secrets provides ordered-rule secret redaction for trace output.
//
// Every trace channel in the host passes its text through a shared Redactor
// before it reaches a sink. Rules are applied in registration order: value
// encoders derive alternate encodings of each literal secret (URL-escaped,
// JSON-escaped) so a secret remains masked even after a subsystem transforms
// it, and regex patterns mask secrets recognized by shape rather than value.
package secrets
