package asm

// lexLines splits source bytes into lines of tokens, following spec §4.B:
//   - space/tab end the current token unless inside a double-quoted string
//   - ',' is a token separator, same as whitespace
//   - ';' begins a line comment: everything to the next newline is
//     discarded, but tokens already accumulated on that line are kept
//   - '\n' ends the line
//   - '"' toggles string mode; spaces are preserved inside a string and
//     the quote characters are kept in the token
//
// Ported from the byte-at-a-time scanning loop in the teacher's
// NewVirtualMachine/CompileSource (vm/compile.go, vm/vm.go) and the
// original dvm_compile (original_source/src/compiler.cpp), generalized
// to track 1-based source line numbers for CompileError reporting.
func lexLines(src []byte) []sourceLine {
	var lines []sourceLine
	var tokens []string
	var token []byte
	inString := false
	inComment := false
	lineNum := 1

	flushToken := func() {
		if len(token) > 0 {
			tokens = append(tokens, string(token))
			token = nil
		}
	}
	flushLine := func() {
		flushToken()
		if len(tokens) > 0 {
			lines = append(lines, sourceLine{num: lineNum, tokens: tokens})
			tokens = nil
		}
	}

	for _, c := range src {
		switch {
		case c == '\n':
			flushLine()
			inComment = false
			lineNum++
		case inComment:
			// discarded until newline
		case c == ';' && !inString:
			inComment = true
		case c == '"':
			inString = !inString
			token = append(token, c)
		case (c == ' ' || c == '\t' || c == ',') && !inString:
			flushToken()
		default:
			token = append(token, c)
		}
	}
	flushLine()

	return lines
}

type sourceLine struct {
	num    int
	tokens []string
}
