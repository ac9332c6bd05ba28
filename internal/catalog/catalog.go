// Package catalog holds the bundled example programs. The engine treats
// them exactly like user-typed source; they exist so the CLI and tests have
// realistic programs to trace without shipping files around.
package catalog

import "sort"

// Example is one named source snippet.
type Example struct {
	Name   string
	Title  string
	Source string
}

var examples = map[string]Example{
	"variables": {
		Name:  "variables",
		Title: "Variables and arithmetic",
		Source: `let price = 3;
let quantity = 4;
let total = price * quantity;
console.log(total);
total = total + 1;
console.log("with fee:", total);
`,
	},
	"functions": {
		Name:  "functions",
		Title: "Calling a function",
		Source: `function double(n) {
    return n * 2;
}
let result = double(21);
console.log(result);
`,
	},
	"recursion": {
		Name:  "recursion",
		Title: "Recursive countdown",
		Source: `function countdown(n) {
    if (n <= 0) {
        return 0;
    }
    return countdown(n - 1);
}
let done = countdown(3);
console.log("done", done);
`,
	},
	"collections": {
		Name:  "collections",
		Title: "Arrays and objects",
		Source: `let scores = [4, 8, 15];
let player = { name: "sam", level: 2 };
scores[0] = 16;
player.level = 3;
console.log(scores[0], player.level);
`,
	},
	"loops": {
		Name:  "loops",
		Title: "Summing with a loop",
		Source: `let sum = 0;
for (let i = 1; i <= 4; i++) {
    sum = sum + i;
}
console.log(sum);
`,
	},
}

// Get returns the named example.
func Get(name string) (Example, bool) {
	ex, ok := examples[name]
	return ex, ok
}

// All returns every example, sorted by name.
func All() []Example {
	out := make([]Example, 0, len(examples))
	for _, ex := range examples {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
