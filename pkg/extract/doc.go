// Package extract turns unstructured text into structured facts using a
// language model, and summarizes retrieved facts into a direct answer.
// LLM responses are parsed leniently; malformed JSON is repaired before
// decoding and several response shapes are accepted.
package extract
