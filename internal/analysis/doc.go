// Package analysis turns the tool calls collected during a conversation into
// deterministic markdown reports. A priority-ordered classifier picks the
// report template from the user's message; every amount is aggregated in wei
// and only converted for display.
package analysis
