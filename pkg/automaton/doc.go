// Package automaton compiles the rubric's dynamic check patterns into
// deterministic finite automata. Compilation happens once, in the rubric
// compiler; the scoring engine only ever executes compiled transition
// tables (directly in tests, or indirectly through a Lagrange-embedded
// table at runtime).
//
// # Supported regex flavor
//
// The accepted syntax is a fixed subset, checked at compile time. Anything
// outside it is rejected with an error rather than approximated:
//
//   - literals, with escapes \n \r \t \0 \\ and \x followed by the
//     standard metacharacters to quote them (\. \* \+ \? \( \) \[ \] \| \{ \} \^ \$ \-)
//   - `.` matching any byte except newline
//   - character classes `[...]` and `[^...]` with ranges, plus the
//     predefined classes \d \D \w \W \s \S
//   - quantifiers `*`, `+`, `?`, `{m}`, `{m,}`, `{m,n}`
//   - alternation `|` and grouping `(...)`
//   - inline case modifiers `(?i)` and `(?-i)`, scoped from their position
//     to the end of the enclosing group
//   - anchors `^` and `$`, permitted only at the start and end of the
//     pattern (and of top-level alternation branches); an anchor anywhere
//     pins that edge for the whole pattern
//
// Matching is conventional search: an unanchored pattern may land anywhere
// in the line it runs against, `^` pins it to the line start, `$` to the
// line end. Content checks feed the automaton one normalized line at a
// time, so the anchors are line anchors in practice.
//
// Backreferences, lookaround, lazy quantifiers, named groups, and Unicode
// classes are not supported; patterns are matched byte-wise.
package automaton
