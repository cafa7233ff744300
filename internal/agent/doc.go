// Package agent runs the conversation loop that turns a natural-language
// question about on-chain activity into tool calls and a final answer.
//
// An Agent holds the shared collaborators: the LLM client, the tool
// registry, the chain catalogue and the report classifier. Each Session owns
// its message history; turns on one session are serialised while separate
// sessions run independently. When the model fails or the iteration budget
// is exhausted, the answer is rendered deterministically from the tool calls
// collected so far.
package agent
