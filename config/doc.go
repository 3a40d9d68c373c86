// Package config defines the pipeline configuration for the plugin host.
//
// A configuration names one pipeline and its plugin instances (inputs,
// processors, outputs), plus the host policies the protocol leaves open:
// the connect retry budget, per-call timeouts, how timeouts are classified,
// and inter-stage queue capacity. Files are YAML; validation is code-level
// and returns classified invalid errors so a bad file never reaches a
// running pump.
package config
