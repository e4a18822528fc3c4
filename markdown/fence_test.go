package markdown

import "testing"

func TestRepairFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"closed", "```\ncode\n```\n", "```\ncode\n```\n"},
		{"unterminated", "```go\ncode\n", "\\```go\ncode\n"},
		{"tilde", "~~~\ncode\n", "\\~~~\ncode\n"},
		{"indented opener", "  ```\nx\n", "  \\```\nx\n"},
		{"indented code is not a fence", "    ```\nx\n", "    ```\nx\n"},
		{"shorter closer does not close", "````\nx\n```\n", "\\````\nx\n\\```\n"},
		{"closer with info does not close", "```\nx\n```py\n", "\\```\nx\n\\```py\n"},
		{"second fence unterminated", "```\na\n```\n```\nb\n", "```\na\n```\n\\```\nb\n"},
		{"backtick in info string", "```a`b\nx\n", "```a`b\nx\n"},
		{"two backticks", "``\nx\n", "``\nx\n"},
		{"closed by next list item", "- a\n  ```\n  x\n- b\n", "- a\n  ```\n  x\n- b\n"},
		{"closed by end of blockquote", "> ```\n> x\n\nafter\n", "> ```\n> x\n\nafter\n"},
		{"unterminated after list", "- a\n\n```\nx\n", "- a\n\n\\```\nx\n"},
		{"no trailing newline", "```go", "\\```go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(repairFences([]byte(tt.in)))
			if got != tt.want {
				t.Fatalf("repairFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
