/*-------------------------------------------------------------------------
 *
 * SQLScribe - Chat Client
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package chat is the interactive terminal client: a readline loop that
// answers plain-language questions through the engine and renders SQL and
// results as markdown.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"sqlscribe/internal/engine"
)

// Client runs the interactive session
type Client struct {
	engine  *engine.Engine
	ui      *UI
	history *History

	// askOpts carries session-level toggles changed by slash commands
	askOpts engine.AskOptions
}

// NewClient creates a chat client. history may be nil to run without
// persistence.
func NewClient(eng *engine.Engine, history *History) *Client {
	return &Client{
		engine:  eng,
		ui:      NewUI(),
		history: history,
	}
}

// Run starts the readline loop and blocks until exit or EOF
func (c *Client) Run(ctx context.Context, modelName string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.ui.Prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	c.ui.PrintBanner(modelName)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := c.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		c.ask(ctx, line)
	}
}

// ask runs one question through the engine and renders the outcome
func (c *Client) ask(ctx context.Context, question string) {
	result, err := c.engine.Ask(ctx, question, c.askOpts)
	if err != nil {
		c.ui.PrintError(err)
		if c.history != nil {
			c.history.Save(question, "", false)
		}
		return
	}

	c.ui.PrintSQL(result.SQL)
	if result.Explanation != "" {
		c.ui.PrintExplanation(result.Explanation)
	}
	if result.Results != nil {
		c.ui.PrintResults(result.Results)
	}
	if c.history != nil {
		c.history.Save(question, result.SQL, true)
	}
}

// handleCommand dispatches a slash command; returns true to exit
func (c *Client) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	command := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(line, command))

	switch command {
	case "/exit", "/quit":
		return true

	case "/help":
		c.printHelp()

	case "/train-ddl":
		c.train(ctx, engine.TrainRequest{DDL: rest})

	case "/train-doc":
		c.train(ctx, engine.TrainRequest{Documentation: rest})

	case "/train-sql":
		c.train(ctx, engine.TrainRequest{SQL: rest})

	case "/autotrain":
		c.askOpts.DisableAutoTrain = !c.askOpts.DisableAutoTrain
		if c.askOpts.DisableAutoTrain {
			c.ui.PrintInfo("Auto-training disabled.")
		} else {
			c.ui.PrintInfo("Auto-training enabled.")
		}

	case "/seedata":
		c.askOpts.AllowLLMToSeeData = !c.askOpts.AllowLLMToSeeData
		if c.askOpts.AllowLLMToSeeData {
			c.ui.PrintInfo("The model may now run exploratory queries against your data.")
		} else {
			c.ui.PrintInfo("Exploratory queries disabled.")
		}

	case "/stats":
		stats, err := c.engine.Store().Stats(ctx)
		if err != nil {
			c.ui.PrintError(err)
			break
		}
		c.ui.PrintInfo(fmt.Sprintf("Knowledge store: %d question/SQL pairs, %d DDL items, %d documentation items (%d total)",
			stats.QuestionSQL, stats.DDL, stats.Documentation, stats.Total))

	case "/history":
		c.printHistory()

	case "/clear-history":
		if c.history == nil {
			c.ui.PrintInfo("History is not enabled.")
			break
		}
		n, err := c.history.Clear()
		if err != nil {
			c.ui.PrintError(err)
			break
		}
		c.ui.PrintInfo(fmt.Sprintf("Removed %d saved exchange(s).", n))

	default:
		c.ui.PrintError(fmt.Errorf("unknown command %s (try /help)", command))
	}
	return false
}

func (c *Client) train(ctx context.Context, req engine.TrainRequest) {
	status, err := c.engine.Train(ctx, req)
	if err != nil {
		c.ui.PrintError(err)
		return
	}
	c.ui.PrintInfo(status)
}

func (c *Client) printHistory() {
	if c.history == nil {
		c.ui.PrintInfo("History is not enabled.")
		return
	}
	exchanges, err := c.history.Recent(10)
	if err != nil {
		c.ui.PrintError(err)
		return
	}
	if len(exchanges) == 0 {
		c.ui.PrintInfo("No saved exchanges yet.")
		return
	}
	for _, e := range exchanges {
		status := "ok"
		if !e.Succeeded {
			status = "failed"
		}
		c.ui.PrintInfo(fmt.Sprintf("[%s] %s  (%s)", e.CreatedAt.Format("2006-01-02 15:04"), e.Question, status))
	}
}

func (c *Client) printHelp() {
	help := `Commands:
  /train-ddl <ddl>    Train with a CREATE TABLE statement
  /train-doc <text>   Train with documentation text
  /train-sql <sql>    Train with a SQL query (question is synthesized)
  /autotrain          Toggle auto-training on successful execution
  /seedata            Toggle exploratory queries (model sees data)
  /stats              Show knowledge store statistics
  /history            Show recent exchanges
  /clear-history      Delete saved exchanges
  /exit               Leave the session`
	fmt.Println(help)
}
