// Package llm defines the provider-neutral completion interface used by the
// agent loop. Provider adapters live in sub-packages (gemini, openai) and
// return raw completion text; parsing the tool-call protocol is left to the
// caller.
package llm
