/*-------------------------------------------------------------------------
 *
 * SQLScribe - Chat UI
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// ANSI colors
const (
	colorReset = "\033[0m"
	colorBlue  = "\033[34m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorGray  = "\033[90m"
)

// UI handles terminal output for the chat client
type UI struct {
	noColor        bool
	renderMarkdown bool
}

// NewUI creates a UI. Colors and markdown rendering are disabled when
// stdout is not a terminal or NO_COLOR is set.
func NewUI() *UI {
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	_, noColorEnv := os.LookupEnv("NO_COLOR")
	return &UI{
		noColor:        !isTerminal || noColorEnv,
		renderMarkdown: isTerminal,
	}
}

func (ui *UI) colorize(color, text string) string {
	if ui.noColor {
		return text
	}
	return color + text + colorReset
}

// Prompt returns the readline prompt string
func (ui *UI) Prompt() string {
	return ui.colorize(colorBlue, "sqlscribe> ")
}

// PrintBanner prints the session header
func (ui *UI) PrintBanner(model string) {
	fmt.Printf("SQLScribe interactive client (model: %s)\n", model)
	fmt.Println("Type a question in plain language, or /help for commands.")
	fmt.Println()
}

// PrintSQL renders the generated SQL as a fenced markdown block
func (ui *UI) PrintSQL(sql string) {
	ui.printMarkdown(fmt.Sprintf("```sql\n%s\n```", sql))
}

// PrintResults renders query results as a markdown table. Row shapes
// other than a slice of column maps fall back to JSON.
func (ui *UI) PrintResults(results any) {
	rows, ok := results.([]map[string]any)
	if !ok || len(rows) == 0 {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			fmt.Printf("%v\n", results)
			return
		}
		fmt.Println(string(data))
		return
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(columns)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = fmt.Sprintf("%v", row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	fmt.Fprintf(&b, "\n%d row(s)\n", len(rows))

	ui.printMarkdown(b.String())
}

// PrintExplanation prints the model's explanation text
func (ui *UI) PrintExplanation(text string) {
	fmt.Println(ui.colorize(colorGray, "Explanation: "+text))
}

// PrintInfo prints a status line
func (ui *UI) PrintInfo(text string) {
	fmt.Println(ui.colorize(colorGreen, text))
}

// PrintError prints an error line to stderr
func (ui *UI) PrintError(err error) {
	fmt.Fprintln(os.Stderr, ui.colorize(colorRed, "Error: "+err.Error()))
}

func (ui *UI) printMarkdown(text string) {
	if ui.renderMarkdown {
		width := ui.terminalWidth()
		if width > 120 {
			width = 120
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			if rendered, err := r.Render(text); err == nil {
				fmt.Print(rendered)
				return
			}
		}
	}
	fmt.Println(text)
}

func (ui *UI) terminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// ReadPassword prompts for a password without echoing it
func ReadPassword(promptText string) (string, error) {
	fmt.Print(promptText)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
