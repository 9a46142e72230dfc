// Package skills loads skill records and assembles the system prompt the
// agent runs with.
//
// BuildSystemPrompt is pure: the same inputs always produce the same prompt,
// with sections in a fixed order. When no skills apply it writes an explicit
// sentinel instead of dropping the section, so the model does not invent one.
package skills
