//go:build mstatstrict

package dgml

// strictGrammar makes unsupported label shapes panic so they surface while
// extending the grammar.
const strictGrammar = true
