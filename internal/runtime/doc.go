// Package runtime executes flows: one gateway event in, one envelope out.
//
// The Executor is stateless between calls. Everything it knows about a conversation is
// read from the session store at the start of a request and written back before the
// envelope is returned.
package runtime
