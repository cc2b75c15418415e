//go:build !mstatstrict

package dgml

const strictGrammar = false
