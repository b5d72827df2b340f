package types

// Version is the canonical project version.
// The CLI, the worker protocol, and the report format share this version
// under the lockstep versioning policy.
const Version = "0.3.0"
